package recon

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// fakeAdapter is a scriptable Adapter for scheduler tests.
type fakeAdapter struct {
	name     domain.Tool
	stage    domain.Stage
	profiles []domain.Profile
	kinds    []domain.TargetKind
	run      func(ctx context.Context, req domain.ToolRequest) domain.Outcome

	mu    sync.Mutex
	calls []domain.ToolRequest
}

func (f *fakeAdapter) Name() domain.Tool              { return f.name }
func (f *fakeAdapter) Stage() domain.Stage            { return f.stage }
func (f *fakeAdapter) Produces() []domain.FindingKind { return nil }
func (f *fakeAdapter) MaxRuntime() time.Duration      { return time.Minute }
func (f *fakeAdapter) Profiles() []domain.Profile {
	if f.profiles != nil {
		return f.profiles
	}
	return []domain.Profile{domain.ProfilePassive, domain.ProfileActive, domain.ProfileFull}
}
func (f *fakeAdapter) TargetKinds() []domain.TargetKind {
	if f.kinds != nil {
		return f.kinds
	}
	return []domain.TargetKind{domain.TargetDomain, domain.TargetIP, domain.TargetCIDR}
}

func (f *fakeAdapter) Run(ctx context.Context, req domain.ToolRequest) domain.Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.run == nil {
		return domain.Outcome{Status: domain.OutcomeSuccess, Message: "0 findings"}
	}
	return f.run(ctx, req)
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAdapter) lastTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1].Targets
}

// memRepo is an in-memory Repository that snapshots every Save.
type memRepo struct {
	mu     sync.Mutex
	saves  []domain.Report
	rows   map[domain.ScanID]*domain.Report
	onSave chan struct{}
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[domain.ScanID]*domain.Report{}, onSave: make(chan struct{}, 16)}
}

func (m *memRepo) Save(ctx context.Context, r *domain.Report) error {
	m.mu.Lock()
	cp := *r
	m.saves = append(m.saves, cp)
	m.rows[r.ID] = &cp
	m.mu.Unlock()
	select {
	case m.onSave <- struct{}{}:
	default:
	}
	return nil
}

func (m *memRepo) Get(ctx context.Context, id domain.ScanID) (*domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRepo) Latest(ctx context.Context, target string) (*domain.Report, error) {
	rs, err := m.History(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	if len(rs) == 0 {
		return nil, domain.ErrNotFound
	}
	return rs[0], nil
}

func (m *memRepo) History(ctx context.Context, target string, limit int) ([]*domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Report
	for _, r := range m.rows {
		if r.Target == target {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortReportsDesc(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) List(ctx context.Context, q domain.ListQuery) ([]*domain.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Report
	for _, r := range m.rows {
		if q.Target != "" && r.Target != q.Target {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if !q.CursorTime.IsZero() {
			if r.StartedAt.After(q.CursorTime) {
				continue
			}
			if r.StartedAt.Equal(q.CursorTime) && string(r.ID) >= q.CursorID {
				continue
			}
		}
		cp := *r
		out = append(out, &cp)
	}
	sortReportsDesc(out)
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memRepo) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	return domain.Summary{}, nil
}

func sortReportsDesc(rs []*domain.Report) {
	for i := 0; i < len(rs); i++ {
		for j := i + 1; j < len(rs); j++ {
			a, b := rs[i], rs[j]
			if b.StartedAt.After(a.StartedAt) || (b.StartedAt.Equal(a.StartedAt) && b.ID > a.ID) {
				rs[i], rs[j] = rs[j], rs[i]
			}
		}
	}
}

func (m *memRepo) statuses() []domain.ScanStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ScanStatus, len(m.saves))
	for i, r := range m.saves {
		out[i] = r.Status
	}
	return out
}

// errSink is an in-memory scan error repository.
type errSink struct {
	mu   sync.Mutex
	rows []*scanerrors.ScanError
}

func (e *errSink) Save(ctx context.Context, r *scanerrors.ScanError) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, r)
	return nil
}

func (e *errSink) ListByScan(ctx context.Context, scanID string, limit int) ([]*scanerrors.ScanError, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*scanerrors.ScanError
	for _, r := range e.rows {
		if r.ScanID == scanID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (e *errSink) phases() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.rows))
	for i, r := range e.rows {
		out[i] = r.Phase
	}
	return out
}

// memStore is an in-memory ArtifactStore.
type memStore struct {
	mu   sync.Mutex
	keys []string
}

func (s *memStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "mem://" + key, nil
}

func (s *memStore) uploaded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func noDNS(ctx context.Context, host string) ([]string, error) {
	return nil, errors.New("no dns in tests")
}

func newTestService(adapters []domain.Adapter, opts Options) (*Service, *memRepo, *errSink, *memStore) {
	repo := newMemRepo()
	sink := &errSink{}
	store := &memStore{}
	if opts.Resolver == nil {
		opts.Resolver = noDNS
	}
	if opts.Workers == 0 {
		opts.Workers = 4
	}
	svc := &Service{
		Repo:      repo,
		Errors:    sink,
		Artifacts: store,
		Adapters:  adapters,
		Clock:     fixedClock{testNow},
		Opts:      opts,
	}
	return svc, repo, sink, store
}

func mustFinding(t *testing.T, kind domain.FindingKind, value, tool string) domain.Finding {
	t.Helper()
	f, err := domain.NewFinding(kind, value, tool, testNow, nil)
	require.NoError(t, err)
	return f
}

func found(findings ...domain.Finding) func(context.Context, domain.ToolRequest) domain.Outcome {
	return func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{
			Findings: findings,
			Status:   domain.OutcomeSuccess,
			Message:  "ok",
		}
	}
}

func TestStartScanComplete(t *testing.T) {
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	port := &fakeAdapter{name: "ports", stage: domain.StagePortScan}
	disco.run = found(
		mustFinding(t, domain.KindSubdomain, "api.example.com", "disco"),
		mustFinding(t, domain.KindSubdomain, "dev.example.com", "disco"),
	)
	port.run = found(mustFinding(t, domain.KindOpenPort, "93.184.216.34:443/tcp", "ports"))

	svc, repo, _, _ := newTestService([]domain.Adapter{disco, port}, Options{
		Resolver: func(ctx context.Context, host string) ([]string, error) {
			return []string{"93.184.216.34"}, nil
		},
	})

	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, report.Status)
	assert.Equal(t, "example.com", report.Target)
	assert.Equal(t, domain.ProfileActive, report.Profile)
	assert.True(t, strings.HasSuffix(string(report.ID), "-active"))
	require.Len(t, report.ToolStatuses, 2)
	assert.Equal(t, domain.Tool("disco"), report.ToolStatuses[0].Tool)
	assert.Equal(t, domain.Tool("ports"), report.ToolStatuses[1].Tool)

	// resolver results join the graph as host findings
	g := report.Graph()
	hosts := g.ByKind(domain.KindHost)
	require.Len(t, hosts, 1)
	assert.Equal(t, "93.184.216.34", hosts[0].Value)
	assert.Equal(t, []string{"resolver"}, hosts[0].Tools)

	assert.Equal(t, 2, report.Counts[domain.KindSubdomain])
	assert.Equal(t, 1, report.Counts[domain.KindOpenPort])

	// running row first, terminal row second
	assert.Equal(t, []domain.ScanStatus{domain.StatusRunning, domain.StatusComplete}, repo.statuses())
}

func TestPortScanSeedsHostsAndLiterals(t *testing.T) {
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	disco.run = found(mustFinding(t, domain.KindSubdomain, "api.example.com", "disco"))
	nmapish := &fakeAdapter{name: "ports", stage: domain.StagePortScan}
	masscan := &fakeAdapter{name: domain.ToolMasscan, stage: domain.StagePortScan}

	svc, _, _, _ := newTestService([]domain.Adapter{disco, nmapish, masscan}, Options{
		Resolver: func(ctx context.Context, host string) ([]string, error) {
			switch host {
			case "example.com":
				return []string{"93.184.216.34"}, nil
			case "api.example.com":
				return []string{"198.51.100.7"}, nil
			}
			return nil, errors.New("nxdomain")
		},
	})

	_, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	// name-capable scanner gets hostnames, masscan only address literals
	assert.ElementsMatch(t, []string{"example.com", "api.example.com"}, nmapish.lastTargets())
	assert.ElementsMatch(t, []string{"93.184.216.34", "198.51.100.7"}, masscan.lastTargets())
}

func TestWebProbeFansOutPerURL(t *testing.T) {
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	disco.run = found(
		mustFinding(t, domain.KindSubdomain, "a.example.com", "disco"),
		mustFinding(t, domain.KindSubdomain, "b.example.com", "disco"),
	)
	web := &fakeAdapter{name: "web", stage: domain.StageWebProbe}

	svc, _, _, _ := newTestService([]domain.Adapter{disco, web}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	assert.Equal(t, 3, web.callCount())
	require.Len(t, report.ToolStatuses, 4)
	assert.Equal(t, "http://example.com", report.ToolStatuses[1].Target)
	assert.Equal(t, "http://a.example.com", report.ToolStatuses[2].Target)
	assert.Equal(t, "http://b.example.com", report.ToolStatuses[3].Target)
}

func TestWebProbeBounded(t *testing.T) {
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	disco.run = found(
		mustFinding(t, domain.KindSubdomain, "a.example.com", "disco"),
		mustFinding(t, domain.KindSubdomain, "b.example.com", "disco"),
		mustFinding(t, domain.KindSubdomain, "c.example.com", "disco"),
	)
	web := &fakeAdapter{name: "web", stage: domain.StageWebProbe}

	svc, _, _, _ := newTestService([]domain.Adapter{disco, web}, Options{MaxWebTargets: 2})
	_, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	assert.Equal(t, 2, web.callCount())
}

func TestPartialWhenOneToolFails(t *testing.T) {
	good := &fakeAdapter{name: "good", stage: domain.StageDiscovery}
	good.run = found(mustFinding(t, domain.KindSubdomain, "a.example.com", "good"))
	bad := &fakeAdapter{name: "bad", stage: domain.StageDiscovery}
	bad.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{
			Status:  domain.OutcomeFailure,
			Message: "exit 1: boom",
			Err:     errors.New("bad exited with code 1"),
		}
	}

	svc, _, sink, _ := newTestService([]domain.Adapter{good, bad}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPartial, report.Status)
	assert.Len(t, report.Findings, 1)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, scanerrors.PhaseExec, sink.rows[0].Phase)
	assert.Equal(t, "bad", sink.rows[0].Tool)
	assert.Contains(t, sink.rows[0].Details, "invocation_id")
}

func TestFailedWhenEveryToolFails(t *testing.T) {
	bad := &fakeAdapter{name: "bad", stage: domain.StageDiscovery}
	bad.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: "exit 1"}
	}

	svc, _, _, _ := newTestService([]domain.Adapter{bad}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, report.Status)
}

func TestParseWarningStillCompletes(t *testing.T) {
	warn := &fakeAdapter{name: "warn", stage: domain.StageDiscovery}
	warn.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{
			Status:  domain.OutcomeParseWarning,
			Message: "empty output",
			Err:     &domain.ParseWarning{Tool: "warn", Reason: "empty output"},
		}
	}

	svc, _, sink, _ := newTestService([]domain.Adapter{warn}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusComplete, report.Status)
	require.Len(t, sink.rows, 1)
	assert.Equal(t, scanerrors.PhaseParse, sink.rows[0].Phase)
}

func TestStrictAbortCancelsInFlightAndSkipsStages(t *testing.T) {
	bad := &fakeAdapter{name: "bad", stage: domain.StageDiscovery}
	bad.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: "exit 1"}
	}
	slow := &fakeAdapter{name: "slow", stage: domain.StageDiscovery}
	slow.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		select {
		case <-ctx.Done():
			return domain.Outcome{Status: domain.OutcomeTimeout, Message: "canceled: wall clock exceeded"}
		case <-time.After(2 * time.Second):
			return domain.Outcome{Status: domain.OutcomeSuccess, Message: "ok"}
		}
	}
	port := &fakeAdapter{name: "ports", stage: domain.StagePortScan}

	strict := true
	svc, _, _, _ := newTestService([]domain.Adapter{bad, slow, port}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{
		Target:  "example.com",
		Profile: "active",
		Strict:  &strict,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.True(t, report.Strict)
	assert.Equal(t, 0, port.callCount(), "later stages must not run after a strict abort")
	require.Len(t, report.ToolStatuses, 2)
	assert.Equal(t, domain.OutcomeFailure, report.ToolStatuses[0].Status)
	assert.Equal(t, domain.OutcomeTimeout, report.ToolStatuses[1].Status)
}

func TestGlobalTimeoutMarksPartial(t *testing.T) {
	slow := &fakeAdapter{name: "slow", stage: domain.StageDiscovery}
	slow.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		time.Sleep(80 * time.Millisecond)
		return domain.Outcome{Status: domain.OutcomeSuccess, Message: "ok"}
	}
	port := &fakeAdapter{name: "ports", stage: domain.StagePortScan}

	svc, _, _, _ := newTestService([]domain.Adapter{slow, port}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{
		Target:      "example.com",
		Profile:     "active",
		MaxDuration: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	// the tool itself succeeded but the deadline cut the scan short
	assert.Equal(t, domain.StatusPartial, report.Status)
	assert.Equal(t, 0, port.callCount())
	require.Len(t, report.ToolStatuses, 1)
	assert.Equal(t, domain.OutcomeSuccess, report.ToolStatuses[0].Status)
}

func TestQueuedRunsCanceledBeforeStart(t *testing.T) {
	mkSlow := func(name domain.Tool) *fakeAdapter {
		a := &fakeAdapter{name: name, stage: domain.StageDiscovery}
		a.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
			<-ctx.Done()
			return domain.Outcome{Status: domain.OutcomeTimeout, Message: "canceled: wall clock exceeded"}
		}
		return a
	}

	svc, _, _, _ := newTestService([]domain.Adapter{mkSlow("one"), mkSlow("two")}, Options{Workers: 1})
	report, err := svc.StartScan(context.Background(), StartScanCommand{
		Target:      "example.com",
		Profile:     "active",
		MaxDuration: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, report.Status)
	require.Len(t, report.ToolStatuses, 2)
	queued := 0
	for _, st := range report.ToolStatuses {
		assert.Equal(t, domain.OutcomeTimeout, st.Status)
		if st.Message == "canceled before start" {
			queued++
		}
	}
	assert.Equal(t, 1, queued, "the run that never got a worker reports canceled before start")
}

func TestWorkerBoundRespected(t *testing.T) {
	var cur, peak atomic.Int32
	mk := func(name domain.Tool) *fakeAdapter {
		a := &fakeAdapter{name: name, stage: domain.StageDiscovery}
		a.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
			c := cur.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			cur.Add(-1)
			return domain.Outcome{Status: domain.OutcomeSuccess, Message: "ok"}
		}
		return a
	}

	svc, _, _, _ := newTestService([]domain.Adapter{mk("a"), mk("b"), mk("c")}, Options{Workers: 1})
	_, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), peak.Load())
}

func TestToolStatusOrderIsRegistrationOrder(t *testing.T) {
	mk := func(name domain.Tool, delay time.Duration) *fakeAdapter {
		a := &fakeAdapter{name: name, stage: domain.StageDiscovery}
		a.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
			time.Sleep(delay)
			return domain.Outcome{Status: domain.OutcomeSuccess, Message: "ok"}
		}
		return a
	}

	// slowest first: completion order is the reverse of registration order
	svc, _, _, _ := newTestService([]domain.Adapter{
		mk("a", 60*time.Millisecond),
		mk("b", 30*time.Millisecond),
		mk("c", 0),
	}, Options{Workers: 3})

	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)
	require.Len(t, report.ToolStatuses, 3)
	assert.Equal(t, domain.Tool("a"), report.ToolStatuses[0].Tool)
	assert.Equal(t, domain.Tool("b"), report.ToolStatuses[1].Tool)
	assert.Equal(t, domain.Tool("c"), report.ToolStatuses[2].Tool)
}

func TestArtifactsUploadedUnderScanKey(t *testing.T) {
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	disco.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		return domain.Outcome{
			Status:  domain.OutcomeSuccess,
			Message: "ok",
			Raw: []domain.Artifact{
				{Name: "disco.json", Data: []byte(`{}`), ContentType: "application/json"},
				{Name: "stderr.txt", Data: []byte("noise"), ContentType: "text/plain"},
			},
		}
	}

	svc, _, _, store := newTestService([]domain.Adapter{disco}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)

	keys := store.uploaded()
	require.Len(t, keys, 2)
	prefix := "scans/" + string(report.ID) + "/disco/0-"
	assert.Equal(t, prefix+"disco.json", keys[0])
	assert.Equal(t, prefix+"stderr.txt", keys[1])
	assert.Equal(t, "mem://"+keys[0], report.ToolStatuses[0].ArtifactURL)
}

func TestProfileFiltersAdapters(t *testing.T) {
	passive := &fakeAdapter{name: "passive-only", stage: domain.StageDiscovery}
	activeUp := &fakeAdapter{
		name:     "active-up",
		stage:    domain.StageDiscovery,
		profiles: []domain.Profile{domain.ProfileActive, domain.ProfileFull},
	}

	svc, _, _, _ := newTestService([]domain.Adapter{passive, activeUp}, Options{})
	report, err := svc.StartScan(context.Background(), StartScanCommand{Target: "example.com", Profile: "passive"})
	require.NoError(t, err)

	require.Len(t, report.ToolStatuses, 1)
	assert.Equal(t, domain.Tool("passive-only"), report.ToolStatuses[0].Tool)
	assert.Equal(t, 0, activeUp.callCount())
}

func TestSubmitRunsInBackground(t *testing.T) {
	done := make(chan struct{})
	disco := &fakeAdapter{name: "disco", stage: domain.StageDiscovery}
	disco.run = func(ctx context.Context, req domain.ToolRequest) domain.Outcome {
		<-done
		return domain.Outcome{Status: domain.OutcomeSuccess, Message: "ok"}
	}

	svc, repo, _, _ := newTestService([]domain.Adapter{disco}, Options{})
	id, err := svc.Submit(context.Background(), StartScanCommand{Target: "example.com", Profile: "active"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// the running row is already visible while the scan is in flight
	r, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, r.Status)

	close(done)
	waitForSaves(t, repo, 2)

	r, err = svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, r.Status)
}

func waitForSaves(t *testing.T, repo *memRepo, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		repo.mu.Lock()
		got := len(repo.saves)
		repo.mu.Unlock()
		if got >= n {
			return
		}
		select {
		case <-repo.onSave:
		case <-deadline:
			t.Fatalf("timed out waiting for %d saves", n)
		}
	}
}
