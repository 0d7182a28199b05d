package ai

import "context"

// Client analyzes a scan report rendered as JSON and returns the
// assessment as a JSON string.
type Client interface {
	Analyze(ctx context.Context, reportJSON string) (string, error)
}

// Repository port for persisting and querying analyses
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	LatestByScan(ctx context.Context, scanID string) (*Analysis, error)
}
