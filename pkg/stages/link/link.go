// Package link implements the Link/Video stage (S9): hyperlink and video
// URL extraction, cleanup, and platform enrichment.
package link

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/models"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

var trailingPunctuation = regexp.MustCompile(`[.,;:!?)\]}'"]+$`)

var youtubePattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/)([\w-]{6,})`)
var vimeoPattern = regexp.MustCompile(`vimeo\.com/(\d+)`)
var brightcovePattern = regexp.MustCompile(`brightcove\.(?:com|net)/.*?/(\d+)`)

// Processor implements processor.Stage for S9.
type Processor struct {
	pool       *pgxpool.Pool
	httpClient *http.Client
	enrich     bool
}

func New(pool *pgxpool.Pool, enrich bool) *Processor {
	return &Processor{pool: pool, httpClient: &http.Client{Timeout: 10 * time.Second}, enrich: enrich}
}

func (p *Processor) Name() models.StageName { return models.StageLink }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash}
}

// Process implements spec section 4.15: extract links/videos from page
// text, clean trailing punctuation, deduplicate videos by platform ID,
// resolve redirects when enrichment is enabled, persist related_chunks by
// page-number matching, and write both tables.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	links, videos := p.extract(ctx, pctx)

	linkChunksByPage(links, pctx.Chunks)
	linkVideosByPage(videos, pctx.Chunks)

	pctx.Links = links
	pctx.Videos = videos

	if err := p.persist(ctx, pctx.DocumentID, links, videos); err != nil {
		return nil, err
	}

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"link_count": len(links), "video_count": len(videos)},
	}, nil
}

// extract scans page text for URLs, splitting them into videos (deduped by
// platform ID) and plain links (redirect-resolved when enrichment is
// enabled). Kept separate from persistence so it can be exercised without a
// live pool.
func (p *Processor) extract(ctx context.Context, pctx *models.ProcessingContext) ([]*models.Link, []*models.Video) {
	seenVideos := map[string]bool{}
	var links []*models.Link
	var videos []*models.Video

	for page, text := range pctx.PageTexts {
		for _, raw := range urlPattern.FindAllString(text, -1) {
			cleaned := cleanURL(raw)
			if cleaned == "" {
				continue
			}

			if platform, id := detectVideoPlatform(cleaned); platform != models.PlatformUnknown {
				key := string(platform) + ":" + id
				if seenVideos[key] {
					continue
				}
				seenVideos[key] = true
				videos = append(videos, &models.Video{
					ID:         uuid.New(),
					DocumentID: pctx.DocumentID,
					URL:        cleaned,
					Platform:   platform,
					PlatformID: id,
					PageNumber: page,
					Metadata:   map[string]any{},
				})
				continue
			}

			if p.enrich {
				if resolved, err := resolveRedirect(ctx, p.httpClient, cleaned); err == nil {
					cleaned = resolved
				}
			}

			links = append(links, &models.Link{
				ID:           uuid.New(),
				DocumentID:   pctx.DocumentID,
				URL:          cleaned,
				PageNumber:   page,
				ScrapeStatus: models.ScrapePending,
				Metadata:     map[string]any{},
			})
		}
	}

	return links, videos
}

// persist writes links and videos inside one transaction. krai_content.links
// has no natural uniqueness, so a re-run clears the document's existing rows
// first; krai_content.videos carries a (platform, platform_id) unique
// constraint and is upserted instead, since the same hosted video can appear
// in more than one document.
func (p *Processor) persist(ctx context.Context, documentID uuid.UUID, links []*models.Link, videos []*models.Video) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("link: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM krai_content.links WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("link: delete existing links: %w", err)
	}

	for _, l := range links {
		metaJSON, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("link: marshal link metadata: %w", err)
		}
		relatedChunks := l.RelatedChunks
		if relatedChunks == nil {
			relatedChunks = []uuid.UUID{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO krai_content.links
			   (id, document_id, url, page_number, scrape_status, scraped_content, related_chunks, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)`,
			l.ID, documentID, l.URL, l.PageNumber, string(l.ScrapeStatus), l.ScrapedContent, relatedChunks, string(metaJSON),
		); err != nil {
			return fmt.Errorf("link: insert link %s: %w", l.URL, err)
		}
	}

	for _, v := range videos {
		metaJSON, err := json.Marshal(v.Metadata)
		if err != nil {
			return fmt.Errorf("link: marshal video metadata: %w", err)
		}
		relatedChunks := v.RelatedChunks
		if relatedChunks == nil {
			relatedChunks = []uuid.UUID{}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO krai_content.videos
			   (id, document_id, url, platform, platform_id, page_number, related_chunks, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
			 ON CONFLICT (platform, platform_id) DO UPDATE SET
			   url = EXCLUDED.url,
			   page_number = EXCLUDED.page_number,
			   related_chunks = EXCLUDED.related_chunks,
			   metadata = EXCLUDED.metadata`,
			v.ID, documentID, v.URL, string(v.Platform), v.PlatformID, v.PageNumber, relatedChunks, string(metaJSON),
		); err != nil {
			return fmt.Errorf("link: upsert video %s: %w", v.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("link: commit transaction: %w", err)
	}
	return nil
}

// cleanURL trims trailing punctuation often swept up by the URL regex
// (sentence-ending periods, closing parens). Malformed URLs are discarded.
// It does not follow redirects.
func cleanURL(raw string) string {
	cleaned := trailingPunctuation.ReplaceAllString(raw, "")
	if _, err := url.ParseRequestURI(cleaned); err != nil {
		return ""
	}
	return cleaned
}

func detectVideoPlatform(rawURL string) (models.VideoPlatform, string) {
	if m := youtubePattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return models.PlatformYouTube, m[1]
	}
	if m := vimeoPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return models.PlatformVimeo, m[1]
	}
	if m := brightcovePattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return models.PlatformBrightcove, m[1]
	}
	return models.PlatformUnknown, ""
}

// linkChunksByPage attaches the IDs of every chunk on a link's page, per
// spec section 4.15's "persist related_chunks by page-number matching."
func linkChunksByPage(links []*models.Link, chunks []*models.Chunk) {
	byPage := chunkIDsByPage(chunks)
	for _, l := range links {
		l.RelatedChunks = byPage[l.PageNumber]
	}
}

func linkVideosByPage(videos []*models.Video, chunks []*models.Chunk) {
	byPage := chunkIDsByPage(chunks)
	for _, v := range videos {
		v.RelatedChunks = byPage[v.PageNumber]
	}
}

func chunkIDsByPage(chunks []*models.Chunk) map[int][]uuid.UUID {
	out := make(map[int][]uuid.UUID)
	for _, c := range chunks {
		out[c.PageNumber] = append(out[c.PageNumber], c.ID)
	}
	return out
}

// resolveRedirect follows a shortened URL via HEAD and returns the final
// destination. Used opportunistically when link enrichment is enabled;
// network failures fall back to the original URL rather than failing the
// stage.
func resolveRedirect(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL, fmt.Errorf("link: build redirect check: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return rawURL, nil
	}
	defer resp.Body.Close()
	return resp.Request.URL.String(), nil
}
