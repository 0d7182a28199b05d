package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	app "github.com/bryanwahyu/automaton-recon/internal/application"
	"github.com/bryanwahyu/automaton-recon/internal/domain/ai"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// Service runs model assessments over finished scan reports and keeps
// the results around for later reads.
type Service struct {
	Client ai.Client
	Repo   ai.Repository
	Scans  domain.Repository
	Clock  app.Clock
	Model  string

	MaxFindings int // findings included in the prompt, 0 = default
}

const defaultMaxFindings = 200

// Analyze renders the stored report for one scan and asks the model for
// an attack surface assessment.
func (s *Service) Analyze(ctx context.Context, scanID string) (*ai.Analysis, error) {
	report, err := s.Scans.Get(ctx, domain.ScanID(scanID))
	if err != nil {
		return nil, err
	}
	if !report.Terminal() {
		return nil, &domain.ValidationError{Field: "scan", Reason: "scan is still running"}
	}

	payload, err := renderReport(report, s.maxFindings())
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	result, err := s.Client.Analyze(ctx, payload)
	if err != nil {
		return nil, err
	}

	a := &ai.Analysis{
		ID:        ai.AnalysisID(uuid.New().String()),
		ScanID:    scanID,
		Model:     s.Model,
		Result:    result,
		CreatedAt: s.Clock.Now().UTC(),
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	return a, nil
}

// Latest ambil analysis terakhir untuk satu scan
func (s *Service) Latest(ctx context.Context, scanID string) (*ai.Analysis, error) {
	return s.Repo.LatestByScan(ctx, scanID)
}

func (s *Service) maxFindings() int {
	if s.MaxFindings > 0 {
		return s.MaxFindings
	}
	return defaultMaxFindings
}

// renderReport produces the compact JSON handed to the model. Findings
// are capped so huge scans stay inside the prompt budget.
func renderReport(r *domain.Report, maxFindings int) (string, error) {
	findings := r.Findings
	truncated := false
	if len(findings) > maxFindings {
		findings = findings[:maxFindings]
		truncated = true
	}
	doc := map[string]any{
		"target":        r.Target,
		"target_kind":   r.TargetKind,
		"profile":       r.Profile,
		"status":        r.Status,
		"started_at":    r.StartedAt,
		"finished_at":   r.FinishedAt,
		"counts":        r.Counts,
		"tool_statuses": r.ToolStatuses,
		"findings":      findings,
	}
	if truncated {
		doc["findings_truncated"] = true
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
