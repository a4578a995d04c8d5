// Package aiservice implements the AI Service (C3): LLM completion, text
// embedding, vision description, over Ollama's HTTP wire contract.
package aiservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/krai-project/krai/pkg/classify"
)

// Provider identifies the backing AI service implementation. KRAI only
// wires ProviderOllama today; the enum shape is grounded on
// itsneelabh-gomind/ai/provider.go's Provider (OpenAI/Anthropic/Gemini/
// Ollama/Auto/Custom) so new backends slot in the same way.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderAuto   Provider = "auto"
)

// Config configures the Ollama-backed AI Service.
type Config struct {
	Provider           Provider
	BaseURL            string
	EmbeddingModel     string
	VisionModel        string
	CompletionModel    string
	MaxPromptChars     int
	RequestTimeout     time.Duration
}

// DefaultEmbeddingModel matches spec section 6: Ollama "/api/embeddings",
// default model embeddinggemma (768 dim).
const DefaultEmbeddingModel = "embeddinggemma"

// LoadConfigFromEnv loads AI service configuration from OLLAMA_URL,
// EMBEDDING_MODEL, VISION_MODEL, COMPLETION_MODEL, EMBEDDING_MAX_PROMPT_CHARS
// and AI_SERVICE_REQUEST_TIMEOUT per spec section 6. Missing values fall back
// to the defaults written below (http://ollama:11434, DefaultEmbeddingModel,
// qwen2.5vl:7b for both vision and completion, 4000 chars, 60s).
func LoadConfigFromEnv() Config {
	cfg := Config{
		Provider:        ProviderOllama,
		BaseURL:         getEnvOrDefault("OLLAMA_URL", "http://ollama:11434"),
		EmbeddingModel:  getEnvOrDefault("EMBEDDING_MODEL", DefaultEmbeddingModel),
		VisionModel:     getEnvOrDefault("VISION_MODEL", "qwen2.5vl:7b"),
		CompletionModel: getEnvOrDefault("COMPLETION_MODEL", "qwen2.5vl:7b"),
		MaxPromptChars:  atoiDefault("EMBEDDING_MAX_PROMPT_CHARS", 4000),
		RequestTimeout:  durationDefault("AI_SERVICE_REQUEST_TIMEOUT", 60*time.Second),
	}
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func atoiDefault(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnvOrDefault(key, strconv.Itoa(defaultVal)))
	if err != nil {
		return defaultVal
	}
	return v
}

func durationDefault(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvOrDefault(key, defaultVal.String()))
	if err != nil {
		return defaultVal
	}
	return d
}

// Service is a thin HTTP client against Ollama's wire contract. No Go
// Ollama SDK appears in the retrieved pack, so the request/response shapes
// below are hand-written against the documented endpoints, following the
// request/response struct + http.Client idiom itsneelabh-gomind's ai
// package uses for its own provider clients.
type Service struct {
	cfg    Config
	client *http.Client
}

// New constructs a Service, normalizing the configured base URL for
// in-container vs local execution.
func New(cfg Config) *Service {
	cfg.BaseURL = NormalizeOllamaURL(cfg.BaseURL)
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Service{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// NormalizeOllamaURL rewrites the in-container DNS hostname "ollama" to
// 127.0.0.1 when the process is not itself running in a container (i.e.
// KRAI_IN_CONTAINER is unset), per spec section 4.9's "Normalize Ollama URL
// hostnames for local runs".
func NormalizeOllamaURL(raw string) string {
	if raw == "" {
		return "http://127.0.0.1:11434"
	}
	if os.Getenv("KRAI_IN_CONTAINER") != "" {
		return raw
	}
	replacements := []string{"://ollama:", "://ollama/"}
	out := raw
	for _, old := range replacements {
		if strings.Contains(out, old) {
			out = strings.Replace(out, "://ollama", "://127.0.0.1", 1)
			break
		}
	}
	return out
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float32 `json:"embedding"`
}

// httpError satisfies processor's httpStatusError interface so the Error
// Classifier can apply the spec's HTTP status rules to AI Service failures.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string   { return fmt.Sprintf("ollama returned HTTP %d: %s", e.status, e.body) }
func (e *httpError) HTTPStatus() int { return e.status }

// Complete calls Ollama's /api/generate for a text completion.
func (s *Service) Complete(ctx context.Context, prompt string) (string, error) {
	model := s.cfg.CompletionModel
	if model == "" {
		model = "llama3"
	}
	var resp generateResponse
	if err := s.postJSON(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt, Stream: false}, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Embed calls Ollama's /api/embeddings for a text chunk, honoring the
// learned per-model prompt-length limit (section 4.13): on a 500 response
// whose body matches the context-length-overflow signature, it truncates
// progressively and retries rather than surfacing a transient error.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	prompt := s.truncate(text)

	for attempt := 0; attempt < 3; attempt++ {
		var resp embeddingsResponse
		err := s.postJSON(ctx, "/api/embeddings", embeddingsRequest{Model: s.cfg.EmbeddingModel, Prompt: prompt}, &resp)
		if err == nil {
			return resp.Embedding, nil
		}

		if isContextLengthOverflow(err) {
			prompt = prompt[:len(prompt)/2]
			s.learnPromptLimit(len(prompt))
			continue
		}
		return nil, err
	}
	return nil, &classify.ContextLimitError{Message: "embedding prompt still exceeds model context limit after truncation"}
}

// DescribeImage calls Ollama's /api/generate with a base64-encoded image
// for vision description (LLaVA-family models).
func (s *Service) DescribeImage(ctx context.Context, imageBytes []byte, instruction string) (string, error) {
	model := s.cfg.VisionModel
	if model == "" {
		model = "llava"
	}
	encoded := base64.StdEncoding.EncodeToString(imageBytes)

	var resp generateResponse
	req := generateRequest{Model: model, Prompt: instruction, Images: []string{encoded}, Stream: false}
	if err := s.postJSON(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (s *Service) truncate(text string) string {
	limit := s.cfg.MaxPromptChars
	if limit <= 0 || len(text) <= limit {
		return text
	}
	return text[:limit]
}

// learnPromptLimit records a tighter MaxPromptChars in-process so later
// calls to the same Service avoid repeating a doomed full-length attempt.
func (s *Service) learnPromptLimit(chars int) {
	if s.cfg.MaxPromptChars == 0 || chars < s.cfg.MaxPromptChars {
		s.cfg.MaxPromptChars = chars
	}
}

func isContextLengthOverflow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "input length exceeds context length")
}

func (s *Service) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("aiservice: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("aiservice: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("aiservice: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("aiservice: read response %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &httpError{status: resp.StatusCode, body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("aiservice: unmarshal response %s: %w", path, err)
	}
	return nil
}

// Health checks Ollama reachability by requesting the tags list.
func (s *Service) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("aiservice: build health request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("aiservice: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("aiservice: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
