package link

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krai-project/krai/pkg/models"
)

func TestCleanURLStripsTrailingPunctuation(t *testing.T) {
	assert.Equal(t, "https://example.com/page", cleanURL("https://example.com/page."))
	assert.Equal(t, "https://example.com/page", cleanURL("https://example.com/page)"))
}

func TestCleanURLRejectsMalformed(t *testing.T) {
	assert.Equal(t, "", cleanURL("not a url at all"))
}

func TestDetectVideoPlatformYouTube(t *testing.T) {
	platform, id := detectVideoPlatform("https://www.youtube.com/watch?v=abc123XYZ")
	assert.Equal(t, models.PlatformYouTube, platform)
	assert.Equal(t, "abc123XYZ", id)
}

func TestDetectVideoPlatformVimeo(t *testing.T) {
	platform, id := detectVideoPlatform("https://vimeo.com/987654321")
	assert.Equal(t, models.PlatformVimeo, platform)
	assert.Equal(t, "987654321", id)
}

func TestDetectVideoPlatformUnknownForRegularLink(t *testing.T) {
	platform, _ := detectVideoPlatform("https://example.com/manual.pdf")
	assert.Equal(t, models.PlatformUnknown, platform)
}

func TestExtractDeduplicatesVideosByPlatformID(t *testing.T) {
	p := New(nil, false)
	pctx := &models.ProcessingContext{
		PageTexts: map[int]string{
			1: "see https://www.youtube.com/watch?v=abc123XYZ for a demo",
			2: "also https://youtu.be/abc123XYZ covers the same topic",
		},
	}

	_, videos := p.extract(nil, pctx)
	require.Len(t, videos, 1, "identical platform IDs across pages must deduplicate")
}

func TestExtractThenLinkChunksByPageAttachesRelatedChunks(t *testing.T) {
	p := New(nil, false)
	chunkID := uuid.New()
	pctx := &models.ProcessingContext{
		PageTexts: map[int]string{1: "reference material at https://example.com/doc"},
		Chunks:    []*models.Chunk{{ID: chunkID, PageNumber: 1}},
	}

	links, _ := p.extract(nil, pctx)
	require.Len(t, links, 1)

	linkChunksByPage(links, pctx.Chunks)
	assert.Equal(t, []uuid.UUID{chunkID}, links[0].RelatedChunks)
}
