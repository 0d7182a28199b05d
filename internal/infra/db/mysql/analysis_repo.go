package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-recon/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save inserts an analysis record
func (r *AnalysisRepository) Save(ctx context.Context, a *ai.Analysis) error {
	const q = `
INSERT INTO recon_analyses
  (id, scan_id, model, result_json, created_at)
VALUES (?,?,?,?,?)
ON DUPLICATE KEY UPDATE
  scan_id=VALUES(scan_id), model=VALUES(model), result_json=VALUES(result_json);
`
	result := a.Result
	if strings.TrimSpace(result) == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, a.ID, stringOrDash(a.ScanID), stringOrDash(a.Model), result, created)
	return err
}

// LatestByScan returns the newest analysis for one scan
func (r *AnalysisRepository) LatestByScan(ctx context.Context, scanID string) (*ai.Analysis, error) {
	const q = `
SELECT id, scan_id, model, result_json, created_at
FROM recon_analyses
WHERE scan_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;
`
	var a ai.Analysis
	err := r.db.QueryRowContext(ctx, q, scanID).Scan(&a.ID, &a.ScanID, &a.Model, &a.Result, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis for scan %s: %w", scanID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}
