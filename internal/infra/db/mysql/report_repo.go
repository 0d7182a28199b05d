package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

type ReportRepository struct {
	db *sql.DB
}

func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, target, target_kind, profile, strict, status,
       started_at, finished_at, findings_json, tool_statuses_json, counts_json`

// Save insert/update report record
func (r *ReportRepository) Save(ctx context.Context, rep *domain.Report) error {
	const q = `
INSERT INTO recon_scans
(id, target, target_kind, profile, strict, status,
 started_at, finished_at, findings_json, tool_statuses_json, counts_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 status=VALUES(status),
 finished_at=VALUES(finished_at),
 findings_json=VALUES(findings_json),
 tool_statuses_json=VALUES(tool_statuses_json),
 counts_json=VALUES(counts_json);
`
	started := rep.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	finished := sql.NullTime{Time: rep.FinishedAt, Valid: !rep.FinishedAt.IsZero()}

	findings, err := encodeJSON(rep.Findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	statuses, err := encodeJSON(rep.ToolStatuses)
	if err != nil {
		return fmt.Errorf("encode tool statuses: %w", err)
	}
	counts, err := encodeJSON(rep.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}

	_, err = r.db.ExecContext(ctx, q,
		rep.ID, rep.Target, stringOrDash(string(rep.TargetKind)), stringOrDash(string(rep.Profile)),
		rep.Strict, stringOrDash(string(rep.Status)),
		started, finished, findings, statuses, counts,
	)
	return err
}

// Get by ID
func (r *ReportRepository) Get(ctx context.Context, id domain.ScanID) (*domain.Report, error) {
	q := `
SELECT ` + reportColumns + `
FROM recon_scans
WHERE id=? LIMIT 1;
`
	rep, err := scanReport(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, domain.ErrNotFound)
	}
	return rep, err
}

// Latest report untuk satu target
func (r *ReportRepository) Latest(ctx context.Context, target string) (*domain.Report, error) {
	q := `
SELECT ` + reportColumns + `
FROM recon_scans
WHERE target=?
ORDER BY started_at DESC, id DESC
LIMIT 1;
`
	rep, err := scanReport(r.db.QueryRowContext(ctx, q, target))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("target %s: %w", target, domain.ErrNotFound)
	}
	return rep, err
}

// History ambil N report terakhir untuk satu target
func (r *ReportRepository) History(ctx context.Context, target string, limit int) ([]*domain.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `
SELECT ` + reportColumns + `
FROM recon_scans
WHERE target=?
ORDER BY started_at DESC, id DESC
LIMIT ?;
`
	rows, err := r.db.QueryContext(ctx, q, target, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReports(rows)
}

// List returns one cursor page, newest first, with optional filters.
func (r *ReportRepository) List(ctx context.Context, lq domain.ListQuery) ([]*domain.Report, error) {
	limit := lq.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
SELECT ` + reportColumns + `
FROM recon_scans
WHERE 1=1`
	var args []interface{}

	if lq.Target != "" {
		query += " AND target LIKE ?"
		args = append(args, "%"+escapeLikePattern(lq.Target)+"%")
	}
	if lq.Status != "" {
		query += " AND status = ?"
		args = append(args, string(lq.Status))
	}
	if !lq.CursorTime.IsZero() {
		query += " AND (started_at < ? OR (started_at = ? AND id < ?))"
		args = append(args, lq.CursorTime, lq.CursorTime, lq.CursorID)
	}

	query += "\nORDER BY started_at DESC, id DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying scans: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// Summary rekap hasil scan N hari terakhir. Per-kind finding totals are
// folded in Go because counts live in a JSON column.
func (r *ReportRepository) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().UTC().AddDate(0, 0, -sinceDays)

	const q = `
SELECT status, counts_json
FROM recon_scans
WHERE started_at >= ?;
`
	rows, err := r.db.QueryContext(ctx, q, cut)
	if err != nil {
		return domain.Summary{}, err
	}
	defer rows.Close()

	sum := domain.Summary{Findings: map[domain.FindingKind]int{}}
	for rows.Next() {
		var status, countsJSON string
		if err := rows.Scan(&status, &countsJSON); err != nil {
			return domain.Summary{}, err
		}
		sum.TotalScans++
		switch domain.ScanStatus(status) {
		case domain.StatusComplete:
			sum.Complete++
		case domain.StatusPartial:
			sum.Partial++
		case domain.StatusFailed:
			sum.Failed++
		}
		var counts map[domain.FindingKind]int
		if err := decodeJSON(countsJSON, &counts); err != nil {
			continue
		}
		for kind, n := range counts {
			sum.Findings[kind] += n
		}
	}
	return sum, rows.Err()
}
