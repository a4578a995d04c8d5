// Package classification implements the Classification stage (S4):
// manufacturer/product/series detection from filename, PDF title, page
// text, and (as a last resort) AI sampling.
package classification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/aiservice"
	"github.com/krai-project/krai/pkg/models"
)

// Catalog resolves manufacturer aliases and series patterns, backed by
// krai_core.manufacturers/series. Kept as an interface so tests can supply
// an in-memory fake instead of a live pool.
type Catalog interface {
	ManufacturerAliases(ctx context.Context) (map[string][]string, error)
	SeriesPatterns(ctx context.Context, manufacturerID uuid.UUID) (map[string]*regexp.Regexp, error)
	ResolveOrCreateManufacturer(ctx context.Context, name string) (uuid.UUID, error)
}

// DBCatalog is the default Catalog, querying krai_core directly.
type DBCatalog struct {
	pool *pgxpool.Pool
}

func NewDBCatalog(pool *pgxpool.Pool) *DBCatalog { return &DBCatalog{pool: pool} }

func (c *DBCatalog) ManufacturerAliases(ctx context.Context) (map[string][]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT name, aliases FROM krai_core.manufacturers`)
	if err != nil {
		return nil, fmt.Errorf("classification: query manufacturer aliases: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var name string
		var aliases []string
		if err := rows.Scan(&name, &aliases); err != nil {
			return nil, fmt.Errorf("classification: scan manufacturer alias row: %w", err)
		}
		out[name] = aliases
	}
	return out, rows.Err()
}

func (c *DBCatalog) SeriesPatterns(ctx context.Context, manufacturerID uuid.UUID) (map[string]*regexp.Regexp, error) {
	rows, err := c.pool.Query(ctx, `SELECT name, patterns FROM krai_core.series WHERE manufacturer_id = $1`, manufacturerID)
	if err != nil {
		return nil, fmt.Errorf("classification: query series patterns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*regexp.Regexp)
	for rows.Next() {
		var name string
		var patterns []string
		if err := rows.Scan(&name, &patterns); err != nil {
			return nil, fmt.Errorf("classification: scan series pattern row: %w", err)
		}
		if len(patterns) == 0 {
			continue
		}
		re, err := regexp.Compile(strings.Join(patterns, "|"))
		if err != nil {
			continue
		}
		out[name] = re
	}
	return out, rows.Err()
}

func (c *DBCatalog) ResolveOrCreateManufacturer(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := c.pool.QueryRow(ctx,
		`INSERT INTO krai_core.manufacturers (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("classification: resolve manufacturer %q: %w", name, err)
	}
	return id, nil
}

// filenamePrefixes maps known filename prefixes to canonical manufacturer
// names, per spec section 4.10 priority 1 ("HP_", "KM_" style prefixes).
var filenamePrefixes = map[string]string{
	"HP_": "HP",
	"KM_": "Konica Minolta",
	"CN_": "Canon",
	"XR_": "Xerox",
	"RC_": "Ricoh",
}

// shortAliasWhitelist allows short, otherwise-ambiguous aliases (like "HP")
// to still match via word-boundary regex during the page-scan pass, per
// spec section 4.10 priority 3.
var shortAliasWhitelist = map[string]bool{"HP": true}

// Processor implements processor.Stage for S4.
type Processor struct {
	catalog Catalog
	ai      *aiservice.Service
}

func New(catalog Catalog, ai *aiservice.Service) *Processor {
	return &Processor{catalog: catalog, ai: ai}
}

func (p *Processor) Name() models.StageName { return models.StageClassification }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"file_hash": pctx.FileHash, "filename": pctx.Filename}
}

// Process implements spec section 4.10's five-step manufacturer-detection
// priority, then resolves the manufacturer catalog row.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	aliases, err := p.catalog.ManufacturerAliases(ctx)
	if err != nil {
		return nil, err
	}

	name := detectFromFilenamePrefix(pctx.Filename)
	source := "filename_prefix"

	if name == "" {
		name, source = detectFromPDFTitle(pctx.PDFTitle, aliases)
	}

	if name == "" {
		name, source = detectFromPageScan(pctx, aliases)
	}

	if name == "" && p.ai != nil {
		name, source = p.detectViaAI(ctx, pctx, aliases)
	}

	if name == "" {
		name, source = detectFromFilenameContent(pctx.Filename, aliases), "filename_content"
	}

	if name == "" {
		return &models.ProcessingResult{
			Status: models.StatusCompleted,
			Data:   map[string]any{"manufacturer": "", "source": "undetected"},
		}, nil
	}

	id, err := p.catalog.ResolveOrCreateManufacturer(ctx, name)
	if err != nil {
		return nil, err
	}
	pctx.ManufacturerID = &id
	pctx.Extra["manufacturer_name"] = name

	return &models.ProcessingResult{
		Status: models.StatusCompleted,
		Data:   map[string]any{"manufacturer": name, "source": source},
	}, nil
}

// detectFromFilenamePrefix implements priority 1.
func detectFromFilenamePrefix(filename string) string {
	for prefix, manufacturer := range filenamePrefixes {
		if strings.HasPrefix(filename, prefix) {
			return manufacturer
		}
	}
	return ""
}

// detectFromPDFTitle implements priority 2: match the PDF's /Title metadata
// against every known alias, honoring the same short-alias whitelist as the
// page scan.
func detectFromPDFTitle(title string, aliases map[string][]string) (string, string) {
	if title == "" {
		return "", ""
	}

	for canonical, aliasList := range aliases {
		all := append([]string{canonical}, aliasList...)
		for _, alias := range all {
			if len(alias) < 3 && !shortAliasWhitelist[alias] {
				continue
			}
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
			if re.MatchString(title) {
				return canonical, "pdf_title"
			}
		}
	}
	return "", ""
}

// detectFromPageScan implements priority 3: scan the first 3 and last 2
// pages for any known alias, honoring the short-alias whitelist via
// word-boundary matching. Pages are scanned in order, so an alias found on
// an earlier page wins over one found on a later page.
func detectFromPageScan(pctx *models.ProcessingContext, aliases map[string][]string) (string, string) {
	for _, text := range samplePages(pctx.PageTexts) {
		for canonical, aliasList := range aliases {
			all := append([]string{canonical}, aliasList...)
			for _, alias := range all {
				if len(alias) < 3 && !shortAliasWhitelist[alias] {
					continue
				}
				re := regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`)
				if re.MatchString(text) {
					return canonical, "page_scan"
				}
			}
		}
	}
	return "", ""
}

// samplePages returns the first 3 and last 2 pages' text, per spec section
// 4.10 priority 3.
func samplePages(pageTexts map[int]string) []string {
	if len(pageTexts) == 0 {
		return nil
	}
	max := 0
	for page := range pageTexts {
		if page > max {
			max = page
		}
	}

	selected := map[int]bool{}
	for p := 1; p <= 3 && p <= max; p++ {
		selected[p] = true
	}
	for p := max - 1; p <= max; p++ {
		if p >= 1 {
			selected[p] = true
		}
	}

	var out []string
	for p := 1; p <= max; p++ {
		if selected[p] {
			out = append(out, pageTexts[p])
		}
	}
	return out
}

// detectViaAI implements priority 4: ask the AI service to name the
// manufacturer from the sampled first/last page text (the same pages as the
// page scan); chunk text is not used. Failures degrade gracefully — this
// is a fallback step, never a stage-failing dependency.
func (p *Processor) detectViaAI(ctx context.Context, pctx *models.ProcessingContext, aliases map[string][]string) (string, string) {
	sample := strings.Join(samplePages(pctx.PageTexts), "\n")
	if sample == "" {
		return "", ""
	}

	prompt := "Which equipment manufacturer produced this service document? Respond with just the manufacturer name.\n\n" + sample
	response, err := p.ai.Complete(ctx, prompt)
	if err != nil {
		return "", ""
	}

	response = strings.TrimSpace(response)
	for canonical := range aliases {
		if strings.EqualFold(canonical, response) || strings.Contains(strings.ToLower(response), strings.ToLower(canonical)) {
			return canonical, "ai_classification"
		}
	}
	return "", ""
}

// detectFromFilenameContent implements priority 5: a case-insensitive
// substring match of every known alias against the filename. No
// model-number patterns are applied; only manufacturer aliases are matched.
func detectFromFilenameContent(filename string, aliases map[string][]string) string {
	lower := strings.ToLower(filename)
	for canonical, aliasList := range aliases {
		for _, alias := range append([]string{canonical}, aliasList...) {
			if strings.Contains(lower, strings.ToLower(alias)) {
				return canonical
			}
		}
	}
	return ""
}
