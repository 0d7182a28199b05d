package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	app "github.com/bryanwahyu/automaton-recon/internal/application"
	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
)

// Service implements use-cases untuk recon scans.
// Service is designed to be used concurrently and is thread-safe:
// every scan works on its own Report, shared state is read-only.
type Service struct {
	Repo      domain.Repository
	Errors    scanerrors.Repository
	Artifacts domain.ArtifactStore
	Adapters  []domain.Adapter
	Clock     app.Clock
	Opts      Options
}

// Options carries engine defaults resolved from config. Zero values fall
// back to built-in defaults at scan time.
type Options struct {
	Workers        int
	MaxDuration    time.Duration
	Strict         bool
	MaxPortTargets int
	MaxWebTargets  int
	Resolver       Resolver
}

// Resolver maps a hostname to its addresses. Production wiring uses
// net.DefaultResolver; tests inject a canned one.
type Resolver func(ctx context.Context, host string) ([]string, error)

//
// ==== USE CASES ====
//

// Command untuk trigger scan. Zero-value fields inherit Service.Opts,
// Strict is a pointer so an explicit false can override a strict default.
type StartScanCommand struct {
	Target      string
	Profile     string
	Strict      *bool
	MaxDuration time.Duration
	Workers     int
}

// DiffResult compares the two most recent finished reports for a target.
type DiffResult struct {
	Target   string           `json:"target"`
	LatestID domain.ScanID    `json:"latest_id"`
	PriorID  domain.ScanID    `json:"prior_id,omitempty"`
	Diff     domain.GraphDiff `json:"diff"`
}

// StartScan jalankan scan sampai selesai: simpan row running dulu,
// eksekusi semua stage, lalu simpan report final.
func (s *Service) StartScan(ctx context.Context, cmd StartScanCommand) (*domain.Report, error) {
	target, profile, opts, err := s.prepare(cmd)
	if err != nil {
		return nil, err
	}

	report := s.newReport(target, profile, opts)
	if err := s.Repo.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("persist initial report: %w", err)
	}

	s.execute(ctx, report, target, opts)

	if err := s.Repo.Save(ctx, report); err != nil {
		s.recordPhaseError(report.ID, "", scanerrors.PhasePersist, err.Error())
		return report, fmt.Errorf("persist final report: %w", err)
	}
	return report, nil
}

// Submit → jalanin scan dengan context.Background() di goroutine,
// cocok dipanggil dari router supaya gak kena context canceled.
// The running row is saved synchronously so the caller always gets an ID
// it can poll.
func (s *Service) Submit(ctx context.Context, cmd StartScanCommand) (domain.ScanID, error) {
	target, profile, opts, err := s.prepare(cmd)
	if err != nil {
		return "", err
	}

	report := s.newReport(target, profile, opts)
	if err := s.Repo.Save(ctx, report); err != nil {
		return "", fmt.Errorf("persist initial report: %w", err)
	}

	go func() {
		bg := context.Background()
		s.execute(bg, report, target, opts)
		if err := s.Repo.Save(bg, report); err != nil {
			logrus.WithError(err).WithField("scan_id", report.ID).Error("failed to persist finished report")
			s.recordPhaseError(report.ID, "", scanerrors.PhasePersist, err.Error())
		}
	}()

	return report.ID, nil
}

// Get ambil 1 report by id
func (s *Service) Get(ctx context.Context, id domain.ScanID) (*domain.Report, error) {
	return s.Repo.Get(ctx, id)
}

// Findings returns the stored findings of one scan, optionally filtered
// by kind and by contributing tool.
func (s *Service) Findings(ctx context.Context, id domain.ScanID, kind, tool string) ([]domain.Finding, error) {
	report, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var fs []domain.Finding
	if kind != "" {
		k, err := domain.ParseFindingKind(kind)
		if err != nil {
			return nil, err
		}
		fs = report.Graph().ByKind(k)
	} else {
		fs = report.Graph().Findings()
	}
	if tool == "" {
		return fs, nil
	}

	out := fs[:0]
	for _, f := range fs {
		for _, t := range f.Tools {
			if t == tool {
				out = append(out, f)
				break
			}
		}
	}
	return out, nil
}

// Latest ambil report terakhir untuk satu target
func (s *Service) Latest(ctx context.Context, rawTarget string) (*domain.Report, error) {
	target, err := domain.ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	return s.Repo.Latest(ctx, target.Value)
}

// History ambil N report terakhir untuk satu target
func (s *Service) History(ctx context.Context, rawTarget string, limit int) ([]*domain.Report, error) {
	target, err := domain.ParseTarget(rawTarget)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	return s.Repo.History(ctx, target.Value, limit)
}

// Diff compares the latest finished report for a target against the one
// before it. With a single finished report everything counts as added.
func (s *Service) Diff(ctx context.Context, rawTarget string) (DiffResult, error) {
	target, err := domain.ParseTarget(rawTarget)
	if err != nil {
		return DiffResult{}, err
	}

	history, err := s.Repo.History(ctx, target.Value, 10)
	if err != nil {
		return DiffResult{}, err
	}
	var terminal []*domain.Report
	for _, r := range history {
		if r.Terminal() {
			terminal = append(terminal, r)
		}
		if len(terminal) == 2 {
			break
		}
	}
	if len(terminal) == 0 {
		return DiffResult{}, fmt.Errorf("no finished scans for %s: %w", target.Value, domain.ErrNotFound)
	}

	latest := terminal[0]
	res := DiffResult{Target: target.Value, LatestID: latest.ID}
	var prior *domain.AssetGraph
	if len(terminal) == 2 {
		res.PriorID = terminal[1].ID
		prior = terminal[1].Graph()
	}
	res.Diff = latest.Graph().Diff(prior)
	return res, nil
}

// Summary rekap hasil scan N hari terakhir
func (s *Service) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	return s.Repo.Summary(ctx, sinceDays)
}

// List returns one cursor page of scans, newest first.
func (s *Service) List(ctx context.Context, q domain.ListQuery) (domain.PaginatedResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	// fetch one extra row to know whether a next page exists
	q.Limit = limit + 1
	rows, err := s.Repo.List(ctx, q)
	if err != nil {
		return domain.PaginatedResult{}, err
	}

	res := domain.PaginatedResult{Data: rows, PageSize: limit}
	if len(rows) > limit {
		res.Data = rows[:limit]
		last := res.Data[limit-1]
		res.NextCursor = fmt.Sprintf("%s,%s", last.StartedAt.UTC().Format(time.RFC3339Nano), last.ID)
	}
	return res, nil
}

//
// ==== helpers ====
//

// prepare validates the command and resolves per-scan run options.
func (s *Service) prepare(cmd StartScanCommand) (domain.Target, domain.Profile, runOptions, error) {
	target, err := domain.ParseTarget(cmd.Target)
	if err != nil {
		return domain.Target{}, "", runOptions{}, err
	}

	raw := cmd.Profile
	if raw == "" {
		raw = string(domain.ProfileActive)
	}
	profile, err := domain.ParseProfile(raw)
	if err != nil {
		return domain.Target{}, "", runOptions{}, err
	}

	opts := runOptions{
		workers:     s.Opts.Workers,
		maxDuration: s.Opts.MaxDuration,
		strict:      s.Opts.Strict,
	}
	if cmd.Workers > 0 {
		opts.workers = cmd.Workers
	}
	if cmd.MaxDuration > 0 {
		opts.maxDuration = cmd.MaxDuration
	}
	if cmd.Strict != nil {
		opts.strict = *cmd.Strict
	}

	if !s.anyApplicable(target, profile) {
		return domain.Target{}, "", runOptions{}, &domain.ValidationError{
			Field:  "profile",
			Reason: fmt.Sprintf("no tools apply to %s targets under the %s profile", target.Kind, profile),
		}
	}
	return target, profile, opts, nil
}

// anyApplicable reports whether at least one adapter would run.
func (s *Service) anyApplicable(target domain.Target, profile domain.Profile) bool {
	for _, a := range s.Adapters {
		if hasProfile(a.Profiles(), profile) && hasKind(a.TargetKinds(), target.Kind) {
			return true
		}
	}
	return false
}

func (s *Service) newReport(target domain.Target, profile domain.Profile, opts runOptions) *domain.Report {
	return &domain.Report{
		ID:         domain.ScanID(fmt.Sprintf("%s-%s", uuid.New().String(), profile)),
		Target:     target.Value,
		TargetKind: target.Kind,
		Profile:    profile,
		Strict:     opts.strict,
		Status:     domain.StatusRunning,
		StartedAt:  s.Clock.Now().UTC(),
		Counts:     map[domain.FindingKind]int{},
	}
}

func hasProfile(ps []domain.Profile, p domain.Profile) bool {
	for _, x := range ps {
		if x == p {
			return true
		}
	}
	return false
}

func hasKind(ks []domain.TargetKind, k domain.TargetKind) bool {
	for _, x := range ks {
		if x == k {
			return true
		}
	}
	return false
}
