package classification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krai-project/krai/pkg/models"
)

func TestDetectFromFilenamePrefix(t *testing.T) {
	assert.Equal(t, "HP", detectFromFilenamePrefix("HP_E877_SM.pdf"))
	assert.Equal(t, "Konica Minolta", detectFromFilenamePrefix("KM_bizhub_c554.pdf"))
	assert.Equal(t, "", detectFromFilenamePrefix("servicemanual.pdf"))
}

func TestDetectFromPageScanPrefersFirstPagesOverLastPages(t *testing.T) {
	pctx := &models.ProcessingContext{
		PageTexts: map[int]string{
			1: "This document is published by HP Inc.",
			2: "table of contents",
			3: "introduction",
			4: "more content",
			5: "Printed under license to Canon",
		},
	}
	aliases := map[string][]string{
		"HP":    {"HP Inc.", "Hewlett-Packard"},
		"Canon": {"Canon Inc."},
	}

	name, source := detectFromPageScan(pctx, aliases)
	assert.Equal(t, "HP", name)
	assert.Equal(t, "page_scan", source)
}

func TestDetectFromPageScanRejectsShortAliasNotWhitelisted(t *testing.T) {
	pctx := &models.ProcessingContext{
		PageTexts: map[int]string{1: "the XY part number appears here"},
	}
	aliases := map[string][]string{"Xerox": {"XY"}}

	name, _ := detectFromPageScan(pctx, aliases)
	assert.Equal(t, "", name, "short aliases outside the whitelist must not match")
}

func TestSamplePagesSelectsFirstThreeAndLastTwo(t *testing.T) {
	pageTexts := map[int]string{
		1: "p1", 2: "p2", 3: "p3", 4: "p4", 5: "p5", 6: "p6", 7: "p7",
	}
	got := samplePages(pageTexts)
	assert.Equal(t, []string{"p1", "p2", "p3", "p6", "p7"}, got)
}

func TestDetectFromFilenameContent(t *testing.T) {
	aliases := map[string][]string{"Ricoh": {"Ricoh"}}
	assert.Equal(t, "Ricoh", detectFromFilenameContent("ricoh_mp_c3004.pdf", aliases))
	assert.Equal(t, "", detectFromFilenameContent("unbranded.pdf", aliases))
}
