package mysql

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// escapeLikePattern escapes special characters in LIKE patterns to prevent SQL injection
func escapeLikePattern(s string) string {
	// Escape backslash first, then other LIKE special characters
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if strings.TrimSpace(s) == "" || s == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanReport reads one recon_scans row, JSON columns included.
func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		rep                        domain.Report
		finished                   sql.NullTime
		findings, statuses, counts string
	)
	if err := row.Scan(
		&rep.ID, &rep.Target, &rep.TargetKind, &rep.Profile, &rep.Strict, &rep.Status,
		&rep.StartedAt, &finished, &findings, &statuses, &counts,
	); err != nil {
		return nil, err
	}
	rep.StartedAt = rep.StartedAt.UTC()
	if finished.Valid {
		rep.FinishedAt = finished.Time.UTC()
	}
	if err := decodeJSON(findings, &rep.Findings); err != nil {
		return nil, fmt.Errorf("decode findings: %w", err)
	}
	if err := decodeJSON(statuses, &rep.ToolStatuses); err != nil {
		return nil, fmt.Errorf("decode tool statuses: %w", err)
	}
	if err := decodeJSON(counts, &rep.Counts); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	return &rep, nil
}

func collectReports(rows *sql.Rows) ([]*domain.Report, error) {
	var out []*domain.Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}
