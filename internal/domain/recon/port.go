package recon

import (
	"context"
	"time"
)

// Adapter port: one implementation per external tool. Adapters build a
// deterministic command line, execute through the Runner and parse the
// tool's own output format into findings, tolerating version drift by
// ignoring unknown lines and fields.
type Adapter interface {
	Name() Tool
	Stage() Stage
	Profiles() []Profile
	TargetKinds() []TargetKind
	Produces() []FindingKind
	MaxRuntime() time.Duration
	Run(ctx context.Context, req ToolRequest) Outcome
}

// Runner port (interface untuk eksekusi subprocess)
type Runner interface {
	// Execute spawns the command with a hard wall-clock timeout. On expiry
	// the whole process tree is killed and the result carries TimedOut.
	Execute(ctx context.Context, cmd Command, timeout time.Duration) (ProcessResult, error)
	// Workspace creates a per-invocation scratch directory. The cleanup
	// func removes it regardless of how the invocation ended.
	Workspace(tool Tool) (dir string, cleanup func(), err error)
}

// ListQuery filters the cursor-paginated scan listing.
type ListQuery struct {
	Limit      int
	CursorTime time.Time
	CursorID   string
	Target     string
	Status     ScanStatus
}

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, r *Report) error
	Get(ctx context.Context, id ScanID) (*Report, error)
	Latest(ctx context.Context, target string) (*Report, error)
	History(ctx context.Context, target string, limit int) ([]*Report, error)
	List(ctx context.Context, q ListQuery) ([]*Report, error)
	Summary(ctx context.Context, sinceDays int) (Summary, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
