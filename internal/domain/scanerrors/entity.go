package scanerrors

import "time"

// Phases a tool invocation can fail in.
const (
	PhaseExec     = "exec"
	PhaseParse    = "parse"
	PhaseArtifact = "artifact"
	PhasePersist  = "persist"
)

// ScanError represents a persisted per-tool error entry
type ScanError struct {
	ID        int64     `json:"id"`
	ScanID    string    `json:"scan_id"`
	Tool      string    `json:"tool,omitempty"`
	Phase     string    `json:"phase,omitempty"` // exec | parse | artifact | persist
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"` // raw JSON string
	CreatedAt time.Time `json:"created_at"`
}
