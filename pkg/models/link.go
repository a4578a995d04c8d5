package models

import "github.com/google/uuid"

// ScrapeStatus tracks whether a discovered link's content has been fetched.
type ScrapeStatus string

const (
	ScrapePending ScrapeStatus = "pending"
	ScrapeDone    ScrapeStatus = "scraped"
	ScrapeFailed  ScrapeStatus = "failed"
	ScrapeSkipped ScrapeStatus = "skipped"
)

// Link is a hyperlink discovered in document text or PDF annotations.
type Link struct {
	ID             uuid.UUID
	DocumentID     uuid.UUID
	URL            string
	PageNumber     int
	ScrapeStatus   ScrapeStatus
	ScrapedContent *string
	RelatedChunks  []uuid.UUID
	Metadata       map[string]any
}

// VideoPlatform identifies the hosting platform of an extracted video link,
// used to deduplicate by platform-native ID.
type VideoPlatform string

const (
	PlatformYouTube   VideoPlatform = "youtube"
	PlatformVimeo     VideoPlatform = "vimeo"
	PlatformBrightcove VideoPlatform = "brightcove"
	PlatformUnknown   VideoPlatform = "unknown"
)

// Video is an extracted video link, optionally enriched via the platform's
// API once a PlatformID has been resolved.
type Video struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	URL           string
	Platform      VideoPlatform
	PlatformID    string
	PageNumber    int
	RelatedChunks []uuid.UUID
	Metadata      map[string]any
}
