package upload

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDocumentTypeHeuristics(t *testing.T) {
	tests := []struct {
		filename string
		title    string
		want     string
	}{
		{"HP_PartsCatalog_2024.pdf", "", "parts_catalog"},
		{"konica_user_guide.pdf", "", "user_guide"},
		{"canon_service_manual.pdf", "", "service_manual"},
		{"random_document.pdf", "", "unknown"},
		{"readme.pdf", "Field Service Manual", "service_manual"},
	}
	for _, tt := range tests {
		got := detectDocumentType(tt.filename, tt.title)
		assert.Equal(t, tt.want, got, "filename=%s title=%s", tt.filename, tt.title)
	}
}

func TestHashFileStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.bin")
	require.NoError(t, os.WriteFile(path, []byte("same bytes every time"), 0o600))

	h1, err := hashFile(path)
	require.NoError(t, err)
	h2, err := hashFile(path)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestInvalidFileTypeErrorMessage(t *testing.T) {
	err := &InvalidFileTypeError{DetectedType: "text/plain"}
	assert.Contains(t, err.Error(), "invalid_file_type")
	assert.Contains(t, err.Error(), "text/plain")
}

func TestDecompressToTempRoundTrips(t *testing.T) {
	dir := t.TempDir()
	gzPath := filepath.Join(dir, "doc.pdfz")

	writeGzip(t, gzPath, []byte("%PDF-1.4 fake content"))

	outPath, cleanup, err := decompressToTemp(gzPath)
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 fake content", string(data))
}

func writeGzip(t *testing.T, path string, content []byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	_, err = gz.Write(content)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
}
