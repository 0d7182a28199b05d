package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
	"github.com/bryanwahyu/automaton-recon/internal/domain/scanerrors"
)

// runOptions are the per-scan knobs after merging command overrides
// over Service.Opts.
type runOptions struct {
	workers     int
	maxDuration time.Duration
	strict      bool
}

// plannedRun is one adapter invocation within a stage. display is what
// shows up in ToolStatus.Target; for fan-out stages it is the single URL,
// otherwise the scan target.
type plannedRun struct {
	adapter domain.Adapter
	targets []string
	display string
}

// stageSeeds are the inputs planned for one stage out of the graph built
// by the stages before it.
type stageSeeds struct {
	hosts []string // names and literals, for scanners that resolve themselves
	addrs []string // address literals only
	urls  []string // webprobe fan-out
}

// execute runs the staged schedule and fills the report in place. Stages
// run sequentially with a barrier between them; invocations inside a
// stage run concurrently under the worker bound.
func (s *Service) execute(ctx context.Context, report *domain.Report, target domain.Target, opts runOptions) {
	log := logrus.WithFields(logrus.Fields{
		"scan_id": report.ID,
		"target":  report.Target,
		"profile": report.Profile,
	})

	if opts.maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.maxDuration)
		defer cancel()
	}
	// one cancel shared by the whole scan; strict mode pulls it early
	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()

	graph := domain.NewAssetGraph()
	aborted := false
	interrupted := false

	for _, stage := range domain.StageOrder() {
		if scanCtx.Err() != nil {
			interrupted = true
			break
		}
		runs := s.planStage(scanCtx, stage, target, report.Profile, graph)
		if len(runs) == 0 {
			continue
		}
		log.WithFields(logrus.Fields{"stage": stage, "invocations": len(runs)}).Info("stage started")

		statuses, outcomes := s.runStage(scanCtx, cancelScan, report, stage, runs, opts.workers)
		report.ToolStatuses = append(report.ToolStatuses, statuses...)
		for _, out := range outcomes {
			graph.Merge(out.Findings...)
		}
		if opts.strict {
			for _, st := range statuses {
				if !st.Status.OK() {
					aborted = true
					break
				}
			}
		}
		log.WithField("stage", stage).Info("stage finished")
		if aborted {
			cancelScan()
			break
		}
	}

	report.Findings = graph.Findings()
	report.Counts = graph.Counts()
	report.FinishedAt = s.Clock.Now().UTC()
	report.Status = finalStatus(report.ToolStatuses, aborted, interrupted)
	log.WithFields(logrus.Fields{
		"status":   report.Status,
		"findings": len(report.Findings),
		"duration": report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	}).Info("scan finished")
}

// planStage selects the applicable adapters and seeds their targets.
func (s *Service) planStage(ctx context.Context, stage domain.Stage, target domain.Target, profile domain.Profile, graph *domain.AssetGraph) []plannedRun {
	var applicable []domain.Adapter
	for _, a := range s.Adapters {
		if a.Stage() == stage && hasProfile(a.Profiles(), profile) && hasKind(a.TargetKinds(), target.Kind) {
			applicable = append(applicable, a)
		}
	}
	if len(applicable) == 0 {
		return nil
	}

	var seeds stageSeeds
	switch stage {
	case domain.StagePortScan:
		seeds = s.portScanSeeds(ctx, target, graph)
	case domain.StageWebProbe:
		seeds = s.webProbeSeeds(target, graph)
	}

	var runs []plannedRun
	for _, a := range applicable {
		switch stage {
		case domain.StageDiscovery:
			runs = append(runs, plannedRun{adapter: a, targets: []string{target.Value}, display: target.Value})
		case domain.StagePortScan:
			// masscan has no resolver of its own, it only takes literals
			ts := seeds.hosts
			if a.Name() == domain.ToolMasscan {
				ts = seeds.addrs
			}
			if len(ts) == 0 {
				continue
			}
			runs = append(runs, plannedRun{adapter: a, targets: ts, display: target.Value})
		case domain.StageWebProbe:
			for _, u := range seeds.urls {
				runs = append(runs, plannedRun{adapter: a, targets: []string{u}, display: u})
			}
		}
	}
	return runs
}

// portScanSeeds collects scan inputs for the portscan stage: the target
// itself plus hosts discovered so far, resolved to addresses for the
// scanners that need literals. Resolved addresses join the graph as
// resolver-tagged host findings.
func (s *Service) portScanSeeds(ctx context.Context, target domain.Target, graph *domain.AssetGraph) stageSeeds {
	max := s.Opts.MaxPortTargets
	if max <= 0 {
		max = 64
	}

	var seeds stageSeeds
	hostSeen := map[string]bool{}
	addrSeen := map[string]bool{}
	addHost := func(v string) {
		if !hostSeen[v] && len(seeds.hosts) < max {
			hostSeen[v] = true
			seeds.hosts = append(seeds.hosts, v)
		}
	}
	addAddr := func(v string) {
		if !addrSeen[v] && len(seeds.addrs) < max {
			addrSeen[v] = true
			seeds.addrs = append(seeds.addrs, v)
		}
	}

	var names []string
	switch target.Kind {
	case domain.TargetIP, domain.TargetCIDR:
		addHost(target.Value)
		addAddr(target.Value)
	default:
		names = append(names, target.Value)
	}
	for _, f := range graph.ByKind(domain.KindSubdomain) {
		names = append(names, f.Value)
	}
	for _, f := range graph.ByKind(domain.KindHost) {
		if net.ParseIP(f.Value) != nil {
			addAddr(f.Value)
		} else {
			names = append(names, f.Value)
		}
	}

	resolve := s.Opts.Resolver
	if resolve == nil {
		resolve = func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		}
	}
	now := s.Clock.Now().UTC()
	nameSeen := map[string]bool{}
	lookups := 0
	for _, name := range names {
		if nameSeen[name] {
			continue
		}
		nameSeen[name] = true
		addHost(name)
		if lookups >= max || ctx.Err() != nil {
			continue
		}
		lookups++
		lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		addrs, err := resolve(lctx, name)
		cancel()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			f, ferr := domain.NewFinding(domain.KindHost, addr, "resolver", now, nil)
			if ferr != nil {
				continue
			}
			graph.Merge(f)
			addAddr(f.Value)
		}
	}
	return seeds
}

// webProbeSeeds builds the URL fan-out: the target and its subdomains on
// plain http, plus anything the port scan saw listening on a web port.
func (s *Service) webProbeSeeds(target domain.Target, graph *domain.AssetGraph) stageSeeds {
	max := s.Opts.MaxWebTargets
	if max <= 0 {
		max = 5
	}

	var urls []string
	seen := map[string]bool{}
	add := func(u string) {
		if !seen[u] && len(urls) < max {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	if target.Kind != domain.TargetCIDR {
		add(hostURL("http", target.Value, 0))
	}
	for _, f := range graph.ByKind(domain.KindSubdomain) {
		add(hostURL("http", f.Value, 0))
	}
	for _, f := range graph.ByKind(domain.KindOpenPort) {
		host, port, ok := splitPortValue(f.Value)
		if !ok {
			continue
		}
		switch port {
		case 80, 8080:
			add(hostURL("http", host, port))
		case 443, 8443:
			add(hostURL("https", host, port))
		}
	}
	return stageSeeds{urls: urls}
}

// runStage executes the planned invocations under the worker bound.
// Result slots are indexed by plan order so the ToolStatus sequence stays
// deterministic no matter which run finishes first.
func (s *Service) runStage(ctx context.Context, cancelScan context.CancelFunc, report *domain.Report, stage domain.Stage, runs []plannedRun, workers int) ([]domain.ToolStatus, []domain.Outcome) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	statuses := make([]domain.ToolStatus, len(runs))
	outcomes := make([]domain.Outcome, len(runs))

	// per-tool ordinal for artifact keys
	ordinals := make([]int, len(runs))
	perTool := map[domain.Tool]int{}
	for i, r := range runs {
		ordinals[i] = perTool[r.adapter.Name()]
		perTool[r.adapter.Name()]++
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func(i int, run plannedRun) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				statuses[i] = domain.ToolStatus{
					Tool:    run.adapter.Name(),
					Target:  run.display,
					Status:  domain.OutcomeTimeout,
					Message: "canceled before start",
				}
				return
			}
			if ctx.Err() != nil {
				statuses[i] = domain.ToolStatus{
					Tool:    run.adapter.Name(),
					Target:  run.display,
					Status:  domain.OutcomeTimeout,
					Message: "canceled before start",
				}
				return
			}

			inv := domain.Invocation{
				ID:        uuid.New().String(),
				Tool:      run.adapter.Name(),
				Stage:     stage,
				Targets:   run.targets,
				StartedAt: s.Clock.Now().UTC(),
			}
			started := time.Now()
			out := run.adapter.Run(ctx, domain.ToolRequest{
				ScanID:  report.ID,
				Profile: report.Profile,
				Targets: run.targets,
			})
			inv.FinishedAt = s.Clock.Now().UTC()
			outcomes[i] = out

			st := domain.ToolStatus{
				Tool:       run.adapter.Name(),
				Target:     run.display,
				Status:     out.Status,
				Message:    out.Message,
				DurationMS: time.Since(started).Milliseconds(),
			}
			st.ArtifactURL = s.uploadArtifacts(report.ID, run.adapter.Name(), ordinals[i], out.Raw)
			statuses[i] = st

			if !out.Status.OK() || out.Err != nil {
				s.recordOutcomeError(report.ID, inv, st, out)
			}
			if !out.Status.OK() && report.Strict {
				cancelScan()
			}

			logrus.WithFields(logrus.Fields{
				"scan_id":       report.ID,
				"invocation_id": inv.ID,
				"tool":          st.Tool,
				"target":        st.Target,
				"status":        st.Status,
				"duration_ms":   st.DurationMS,
				"findings":      len(out.Findings),
			}).Info("tool finished")
		}(i, runs[i])
	}
	wg.Wait()
	return statuses, outcomes
}

// uploadArtifacts pushes raw tool output to the artifact store and returns
// the primary (first) URL. Uploads survive scan cancellation; failures are
// recorded, never fatal.
func (s *Service) uploadArtifacts(scanID domain.ScanID, tool domain.Tool, ordinal int, artifacts []domain.Artifact) string {
	if s.Artifacts == nil || len(artifacts) == 0 {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	primary := ""
	for _, a := range artifacts {
		key := fmt.Sprintf("scans/%s/%s/%d-%s", scanID, tool, ordinal, a.Name)
		url, err := s.Artifacts.Upload(ctx, key, a.Data, a.ContentType)
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"scan_id": scanID,
				"tool":    tool,
				"key":     key,
			}).Warn("artifact upload failed")
			s.recordPhaseError(scanID, tool, scanerrors.PhaseArtifact, fmt.Sprintf("upload %s: %v", key, err))
			continue
		}
		if primary == "" {
			primary = url
		}
	}
	return primary
}

// recordOutcomeError persists one failed or warned invocation.
func (s *Service) recordOutcomeError(scanID domain.ScanID, inv domain.Invocation, st domain.ToolStatus, out domain.Outcome) {
	phase := scanerrors.PhaseExec
	if out.Status == domain.OutcomeParseWarning {
		phase = scanerrors.PhaseParse
	}
	details, _ := json.Marshal(map[string]any{
		"invocation_id": inv.ID,
		"stage":         inv.Stage,
		"targets":       inv.Targets,
		"duration_ms":   st.DurationMS,
	})
	s.saveError(&scanerrors.ScanError{
		ScanID:    string(scanID),
		Tool:      string(inv.Tool),
		Phase:     phase,
		Message:   st.Message,
		Details:   string(details),
		CreatedAt: s.Clock.Now().UTC(),
	})
}

// recordPhaseError persists a non-invocation failure (artifact, persist).
func (s *Service) recordPhaseError(scanID domain.ScanID, tool domain.Tool, phase, message string) {
	s.saveError(&scanerrors.ScanError{
		ScanID:    string(scanID),
		Tool:      string(tool),
		Phase:     phase,
		Message:   message,
		CreatedAt: s.Clock.Now().UTC(),
	})
}

func (s *Service) saveError(e *scanerrors.ScanError) {
	if s.Errors == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Errors.Save(ctx, e); err != nil {
		logrus.WithError(err).WithField("scan_id", e.ScanID).Warn("failed to persist scan error")
	}
}

// finalStatus maps the per-tool outcomes to the scan status. A strict
// abort always fails; otherwise the scan is complete when every tool was
// usable and nothing got cut short.
func finalStatus(statuses []domain.ToolStatus, aborted, interrupted bool) domain.ScanStatus {
	if aborted {
		return domain.StatusFailed
	}
	ok, bad := 0, 0
	for _, st := range statuses {
		if st.Status.OK() {
			ok++
		} else {
			bad++
		}
	}
	switch {
	case ok == 0:
		return domain.StatusFailed
	case bad == 0 && !interrupted:
		return domain.StatusComplete
	default:
		return domain.StatusPartial
	}
}

// hostURL builds a probe URL, bracketing IPv6 literals and dropping
// default ports.
func hostURL(scheme, host string, port int) string {
	h := host
	if strings.Contains(host, ":") {
		h = "[" + host + "]"
	}
	if port == 0 || (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return scheme + "://" + h
	}
	return fmt.Sprintf("%s://%s:%d", scheme, h, port)
}

// splitPortValue takes an addr:port/proto value apart again.
func splitPortValue(v string) (host string, port int, ok bool) {
	slash := strings.LastIndex(v, "/")
	if slash < 0 {
		return "", 0, false
	}
	host, portStr, err := net.SplitHostPort(v[:slash])
	if err != nil {
		return "", 0, false
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, false
	}
	return host, port, true
}
