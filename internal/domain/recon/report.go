package recon

import (
	"fmt"
	"strings"
	"time"
)

// ID tipe untuk Scan
type ScanID string

// Tool enum
type Tool string

const (
	ToolSubfinder    Tool = "subfinder"
	ToolAmass        Tool = "amass"
	ToolTheHarvester Tool = "theharvester"
	ToolWhois        Tool = "whois"
	ToolDNSEnum      Tool = "dnsenum"
	ToolNmap         Tool = "nmap"
	ToolMasscan      Tool = "masscan"
	ToolWhatWeb      Tool = "whatweb"
	ToolGobuster     Tool = "gobuster"
	ToolDirsearch    Tool = "dirsearch"
)

// ScanStatus enum. running is the persisted in-flight state for async
// submissions; the terminal states are complete, partial and failed.
type ScanStatus string

const (
	StatusRunning  ScanStatus = "running"
	StatusComplete ScanStatus = "complete"
	StatusPartial  ScanStatus = "partial"
	StatusFailed   ScanStatus = "failed"
)

// ParseScanStatus validates a status name coming from query params.
func ParseScanStatus(raw string) (ScanStatus, error) {
	s := ScanStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusRunning, StatusComplete, StatusPartial, StatusFailed:
		return s, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown scan status %q", raw)}
}

// ToolOutcome enum for one invocation.
type ToolOutcome string

const (
	OutcomeSuccess      ToolOutcome = "success"
	OutcomeFailure      ToolOutcome = "failure"
	OutcomeTimeout      ToolOutcome = "timeout"
	OutcomeParseWarning ToolOutcome = "parse_warning"
)

// OK reports whether the invocation still contributed usable results.
func (o ToolOutcome) OK() bool {
	return o == OutcomeSuccess || o == OutcomeParseWarning
}

// ToolStatus is one per-invocation entry in the report. Ordering is
// deterministic: stage, then adapter registration order, then target.
type ToolStatus struct {
	Tool        Tool        `json:"tool"`
	Target      string      `json:"target,omitempty"`
	Status      ToolOutcome `json:"status"`
	Message     string      `json:"message,omitempty"`
	DurationMS  int64       `json:"duration_ms"`
	ArtifactURL string      `json:"artifact_url,omitempty"`
}

// Aggregate Root: Report
type Report struct {
	ID           ScanID              `json:"id"`
	Target       string              `json:"target"`
	TargetKind   TargetKind          `json:"target_kind"`
	Profile      Profile             `json:"profile"`
	Strict       bool                `json:"strict"`
	Status       ScanStatus          `json:"status"`
	StartedAt    time.Time           `json:"started_at"`
	FinishedAt   time.Time           `json:"finished_at"`
	Findings     []Finding           `json:"findings"`
	ToolStatuses []ToolStatus        `json:"tool_statuses"`
	Counts       map[FindingKind]int `json:"counts"`
}

// Graph rebuilds the asset graph from the stored findings.
func (r *Report) Graph() *AssetGraph {
	return FromFindings(r.Findings)
}

// Terminal reports whether the scan reached a final state.
func (r *Report) Terminal() bool {
	return r.Status != StatusRunning
}

// Summary rekap hasil scan N hari terakhir
type Summary struct {
	TotalScans int                 `json:"total_scans"`
	Complete   int                 `json:"complete"`
	Partial    int                 `json:"partial"`
	Failed     int                 `json:"failed"`
	Findings   map[FindingKind]int `json:"findings"`
}

// PaginatedResult represents a cursor-paginated scan listing.
type PaginatedResult struct {
	Data       []*Report `json:"data"`
	PageSize   int       `json:"pageSize"`
	NextCursor string    `json:"nextCursor,omitempty"`
}
