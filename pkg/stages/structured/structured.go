// Package structured implements the optional Structured Extraction stage
// (S10): best-effort table persistence into krai_intelligence.structured_tables,
// auto-disabling per the MissingDependency taxonomy when the table is
// absent from a deployment (spec section 9's open question: "Structured
// table storage is optional and may be absent in some deployments").
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krai-project/krai/pkg/classify"
	"github.com/krai-project/krai/pkg/models"
)

// Processor implements processor.Stage for S10.
//
// Grounded on the Stage Tracker's own MissingDependency auto-disable idiom
// (pkg/stagetracker), applied here to a second RPC/table dependency rather
// than duplicated ad hoc.
type Processor struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	mu       sync.Mutex
	disabled bool
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{pool: pool, logger: logger}
}

func (p *Processor) Name() models.StageName { return models.StageStructured }

func (p *Processor) HashFields(pctx *models.ProcessingContext) map[string]any {
	return map[string]any{"document_id": pctx.DocumentID}
}

// Process writes any extracted tables found in Extra["tables"], if the
// target table exists; otherwise it disables itself after the first
// failure, per spec section 7.
func (p *Processor) Process(ctx context.Context, pctx *models.ProcessingContext) (*models.ProcessingResult, error) {
	if p.isDisabled() {
		return &models.ProcessingResult{Status: models.StatusSkippedCompleted}, nil
	}

	tables, _ := pctx.Extra["tables"].([]map[string]any)
	if len(tables) == 0 {
		return &models.ProcessingResult{Status: models.StatusCompleted}, nil
	}

	written := 0
	for _, table := range tables {
		if err := p.insertTable(ctx, pctx.DocumentID, table); err != nil {
			if isMissingTable(err) {
				p.disable()
				p.logger.Warn("structured: krai_intelligence.structured_tables unavailable, disabling stage", "error", err)
				return &models.ProcessingResult{Status: models.StatusCompleted, Data: map[string]any{"tables_written": written}}, nil
			}
			return nil, err
		}
		written++
	}

	return &models.ProcessingResult{Status: models.StatusCompleted, Data: map[string]any{"tables_written": written}}, nil
}

func (p *Processor) insertTable(ctx context.Context, documentID uuid.UUID, table map[string]any) error {
	payload, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("structured: marshal table payload: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO krai_intelligence.structured_tables (document_id, content) VALUES ($1, $2::jsonb)`,
		documentID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("structured: insert table: %w", err)
	}
	return nil
}

func isMissingTable(err error) bool {
	if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
		return true
	}
	c := classify.Classify(err, 0)
	return c.Category == models.CategoryMissingDependency
}

func (p *Processor) isDisabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabled
}

func (p *Processor) disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled = true
}
