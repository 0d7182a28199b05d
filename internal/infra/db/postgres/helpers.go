package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

func stringOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// escapeLikePattern biar wildcard user gak kebawa ke LIKE
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(raw string, v interface{}) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (*domain.Report, error) {
	var (
		rep        domain.Report
		kind       string
		profile    string
		status     string
		finished   sql.NullTime
		findings   string
		statuses   string
		countsJSON string
	)
	err := row.Scan(
		&rep.ID, &rep.Target, &kind, &profile, &rep.Strict, &status,
		&rep.StartedAt, &finished, &findings, &statuses, &countsJSON,
	)
	if err != nil {
		return nil, err
	}

	rep.TargetKind = domain.TargetKind(kind)
	rep.Profile = domain.Profile(profile)
	rep.Status = domain.ScanStatus(status)
	rep.StartedAt = rep.StartedAt.UTC()
	if finished.Valid {
		rep.FinishedAt = finished.Time.UTC()
	}

	if err := decodeJSON(findings, &rep.Findings); err != nil {
		return nil, err
	}
	if err := decodeJSON(statuses, &rep.ToolStatuses); err != nil {
		return nil, err
	}
	if err := decodeJSON(countsJSON, &rep.Counts); err != nil {
		return nil, err
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
