package local

import (
	"context"

	"github.com/bryanwahyu/automaton-recon/internal/infra/ai/prompt"
)

// ModelName tags analyses produced by the heuristic grader.
const ModelName = "local-rules"

// Client grades reports with the built-in heuristics, no external model.
// Used when no API key is configured.
type Client struct{}

func (Client) Analyze(ctx context.Context, reportJSON string) (string, error) {
	return prompt.AssessReport(reportJSON)
}
