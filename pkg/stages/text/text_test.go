package text

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHeadingVariants(t *testing.T) {
	tests := []struct {
		line      string
		wantText  string
		wantLevel int
	}{
		{"CHAPTER IV", "CHAPTER IV", 1},
		{"Error Codes", "Error Codes", 1},
		{"3.2 Replacing The Fuser Unit", "3.2 Replacing The Fuser Unit", 2},
		{"TROUBLESHOOTING", "TROUBLESHOOTING", 2},
		{"just a regular sentence.", "", 0},
		{"", "", 0},
	}
	for _, tt := range tests {
		gotText, gotLevel := detectHeading(tt.line)
		assert.Equal(t, tt.wantText, gotText, "line=%q", tt.line)
		assert.Equal(t, tt.wantLevel, gotLevel, "line=%q", tt.line)
	}
}

func TestIsAllCaps(t *testing.T) {
	assert.True(t, isAllCaps("TROUBLESHOOTING"))
	assert.True(t, isAllCaps("ERROR CODES 101"))
	assert.False(t, isAllCaps("Mixed Case"))
	assert.False(t, isAllCaps("1234"))
}

func TestSetHierarchyLevelTruncatesDeeperLevels(t *testing.T) {
	h := []string{"Chapter 1", "Section 1.1", "Subsection 1.1.1"}
	got := setHierarchyLevel(h, 2, "Section 1.2")
	assert.Equal(t, []string{"Chapter 1", "Section 1.2"}, got)
}

func TestSetHierarchyLevelAppendsNewDepth(t *testing.T) {
	h := []string{"Chapter 1"}
	got := setHierarchyLevel(h, 2, "Section 1.1")
	assert.Equal(t, []string{"Chapter 1", "Section 1.1"}, got)
}

func TestLinkChunksFormsLinearChain(t *testing.T) {
	p := &Processor{cfg: DefaultConfig()}
	docID := uuid.New()
	raw := []rawChunk{
		{page: 1, hierarchy: []string{"Intro"}},
		{page: 1, hierarchy: []string{"Intro"}},
		{page: 2, hierarchy: []string{"Body"}},
	}
	for i := range raw {
		raw[i].text.WriteString("this line is long enough to survive the minimum chunk length filter easily")
	}

	chunks := p.linkChunks(docID, raw)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		if i > 0 {
			require.NotNil(t, c.PreviousChunkID)
			assert.Equal(t, chunks[i-1].ID, *c.PreviousChunkID)
		} else {
			assert.Nil(t, c.PreviousChunkID)
		}
		if i < len(chunks)-1 {
			require.NotNil(t, c.NextChunkID)
			assert.Equal(t, chunks[i+1].ID, *c.NextChunkID)
		} else {
			assert.Nil(t, c.NextChunkID)
		}
	}
}

func TestLinkChunksDropsShortChunksUnlessDebugFlagSet(t *testing.T) {
	docID := uuid.New()
	raw := []rawChunk{{page: 1, hierarchy: nil}}
	raw[0].text.WriteString("too short")

	strict := &Processor{cfg: DefaultConfig()}
	assert.Empty(t, strict.linkChunks(docID, raw))

	lenient := &Processor{cfg: Config{AllowShortChunks: true}}
	assert.Len(t, lenient.linkChunks(docID, raw), 1)
}
