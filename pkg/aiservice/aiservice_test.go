package aiservice

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOllamaURLRewritesContainerHostLocally(t *testing.T) {
	os.Unsetenv("KRAI_IN_CONTAINER")
	assert.Equal(t, "http://127.0.0.1:11434", NormalizeOllamaURL("http://ollama:11434"))
}

func TestNormalizeOllamaURLKeepsContainerHostInContainer(t *testing.T) {
	t.Setenv("KRAI_IN_CONTAINER", "1")
	assert.Equal(t, "http://ollama:11434", NormalizeOllamaURL("http://ollama:11434"))
}

func TestNormalizeOllamaURLDefaultsWhenEmpty(t *testing.T) {
	os.Unsetenv("KRAI_IN_CONTAINER")
	assert.Equal(t, "http://127.0.0.1:11434", NormalizeOllamaURL(""))
}

func TestNormalizeOllamaURLLeavesOtherHostsAlone(t *testing.T) {
	os.Unsetenv("KRAI_IN_CONTAINER")
	assert.Equal(t, "http://ollama.internal.example.com:11434", NormalizeOllamaURL("http://ollama.internal.example.com:11434"))
}

func TestTruncateRespectsConfiguredLimit(t *testing.T) {
	s := &Service{cfg: Config{MaxPromptChars: 5}}
	assert.Equal(t, "hello", s.truncate("hello world"))
}

func TestTruncateNoopWhenUnderLimit(t *testing.T) {
	s := &Service{cfg: Config{MaxPromptChars: 500}}
	assert.Equal(t, "short", s.truncate("short"))
}

func TestIsContextLengthOverflowDetectsOllamaSignature(t *testing.T) {
	err := &httpError{status: 500, body: `{"error":"input length exceeds context length"}`}
	assert.True(t, isContextLengthOverflow(err))
}

func TestIsContextLengthOverflowFalseForUnrelatedError(t *testing.T) {
	err := &httpError{status: 500, body: "internal server error"}
	assert.False(t, isContextLengthOverflow(err))
}

func TestLearnPromptLimitTightensDownward(t *testing.T) {
	s := &Service{cfg: Config{MaxPromptChars: 1000}}
	s.learnPromptLimit(400)
	assert.Equal(t, 400, s.cfg.MaxPromptChars)

	s.learnPromptLimit(900)
	assert.Equal(t, 400, s.cfg.MaxPromptChars, "must never widen the learned limit")
}
