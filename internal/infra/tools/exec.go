package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// spec is the static description of one tool.
type spec struct {
	name        domain.Tool
	stage       domain.Stage
	minProfile  domain.Profile
	targetKinds []domain.TargetKind
	produces    []domain.FindingKind
	maxRuntime  time.Duration
}

// execAdapter is the shared subprocess adapter: build a deterministic argv,
// run it through the Runner inside a scratch workspace, classify the exit,
// then parse the declared output. Tool files fill in build/parse/exitOK.
type execAdapter struct {
	spec
	runner domain.Runner
	opts   domain.ToolOptions

	// build returns the command and the output file path to parse after the
	// run ("" means parse stdout). Paths it creates must live under dir.
	build func(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error)
	// parse extracts findings; returned errors degrade to parse_warning.
	parse func(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error)
	// exitOK overrides the plain exit-code check (nil means code == 0).
	exitOK func(res domain.ProcessResult) bool
}

func (a *execAdapter) Name() domain.Tool                { return a.name }
func (a *execAdapter) Stage() domain.Stage              { return a.stage }
func (a *execAdapter) TargetKinds() []domain.TargetKind { return a.targetKinds }
func (a *execAdapter) Produces() []domain.FindingKind   { return a.produces }

func (a *execAdapter) Profiles() []domain.Profile {
	var out []domain.Profile
	for _, p := range []domain.Profile{domain.ProfilePassive, domain.ProfileActive, domain.ProfileFull} {
		if p.Includes(a.minProfile) {
			out = append(out, p)
		}
	}
	return out
}

func (a *execAdapter) MaxRuntime() time.Duration {
	if a.opts.Timeout > 0 {
		return a.opts.Timeout
	}
	return a.maxRuntime
}

func (a *execAdapter) binary(def string) string {
	if a.opts.BinaryPath != "" {
		return a.opts.BinaryPath
	}
	return def
}

func (a *execAdapter) Run(ctx context.Context, req domain.ToolRequest) domain.Outcome {
	dir, cleanup, err := a.runner.Workspace(a.name)
	if err != nil {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: err.Error(), Err: err}
	}
	defer cleanup()

	cmd, outPath, err := a.build(a, req, dir)
	if err != nil {
		return domain.Outcome{Status: domain.OutcomeFailure, Message: err.Error(), Err: err}
	}
	cmd.Args = append(cmd.Args, a.opts.ExtraArgs...)

	res, err := a.runner.Execute(ctx, cmd, a.MaxRuntime())
	if err != nil {
		var rerr *domain.ResourceError
		if errors.As(err, &rerr) {
			rerr = &domain.ResourceError{Tool: a.name, Binary: rerr.Binary, Err: rerr.Err}
			return domain.Outcome{Status: domain.OutcomeFailure, Message: rerr.Error(), Err: rerr}
		}
		return domain.Outcome{Status: domain.OutcomeFailure, Message: err.Error(), Err: err}
	}

	raw := collectArtifacts(res, outPath)

	if res.TimedOut {
		msg := fmt.Sprintf("wall clock exceeded after %s", res.Duration.Round(time.Millisecond))
		if ctx.Err() != nil {
			msg = "canceled: " + msg
		}
		return domain.Outcome{Status: domain.OutcomeTimeout, Message: msg, Raw: raw}
	}

	ok := res.ExitCode == 0
	if a.exitOK != nil {
		ok = a.exitOK(res)
	}
	if !ok {
		err := fmt.Errorf("%s exited with code %d", a.name, res.ExitCode)
		return domain.Outcome{
			Status:  domain.OutcomeFailure,
			Message: fmt.Sprintf("exit %d: %s", res.ExitCode, tail(res.Stderr, 2000)),
			Raw:     raw,
			Err:     err,
		}
	}

	data := res.Stdout
	if outPath != "" {
		b, rerr := os.ReadFile(outPath)
		if rerr != nil {
			warn := &domain.ParseWarning{Tool: a.name, Reason: "output file missing: " + filepath.Base(outPath)}
			return domain.Outcome{Status: domain.OutcomeParseWarning, Message: warn.Reason, Raw: raw, Err: warn}
		}
		data = b
	}

	now := time.Now().UTC()
	findings, perr := a.parse(req, data, now)
	if perr != nil {
		warn := &domain.ParseWarning{Tool: a.name, Reason: perr.Error()}
		return domain.Outcome{
			Status:   domain.OutcomeParseWarning,
			Findings: findings,
			Message:  warn.Reason,
			Raw:      raw,
			Err:      warn,
		}
	}
	if len(findings) == 0 && len(bytes.TrimSpace(data)) == 0 {
		warn := &domain.ParseWarning{Tool: a.name, Reason: "empty output"}
		return domain.Outcome{Status: domain.OutcomeParseWarning, Message: warn.Reason, Raw: raw, Err: warn}
	}

	msg := fmt.Sprintf("%d findings", len(findings))
	if res.Truncated {
		msg += " (output truncated)"
	}
	return domain.Outcome{Status: domain.OutcomeSuccess, Findings: findings, Message: msg, Raw: raw}
}

// collectArtifacts keeps the tool's report file plus stdout/stderr for
// upload; the workspace itself is gone once Run returns.
func collectArtifacts(res domain.ProcessResult, outPath string) []domain.Artifact {
	var out []domain.Artifact
	if outPath != "" {
		if b, err := os.ReadFile(outPath); err == nil && len(b) > 0 {
			out = append(out, domain.Artifact{
				Name:        filepath.Base(outPath),
				Data:        b,
				ContentType: contentTypeByExt(outPath),
			})
		}
	}
	if len(res.Stdout) > 0 {
		out = append(out, domain.Artifact{Name: "stdout.txt", Data: res.Stdout, ContentType: "text/plain"})
	}
	if len(res.Stderr) > 0 {
		out = append(out, domain.Artifact{Name: "stderr.txt", Data: res.Stderr, ContentType: "text/plain"})
	}
	return out
}

func contentTypeByExt(path string) string {
	switch filepath.Ext(path) {
	case ".json":
		return "application/json"
	case ".xml":
		return "text/xml"
	case ".html":
		return "text/html"
	default:
		return "text/plain"
	}
}

// tail keeps the last n bytes, matching what fits in a status message.
func tail(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// checkDomain guards argv interpolation: web/port targets go through their
// own checks, discovery tools only ever see a bare domain.
func checkDomain(target string) error {
	t, err := domain.ParseTarget(target)
	if err != nil {
		return err
	}
	if t.Kind != domain.TargetDomain {
		return fmt.Errorf("target %q is not a domain", target)
	}
	return nil
}

func checkHostish(target string) error {
	_, err := domain.ParseTarget(target)
	return err
}

func checkURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("target %q is not a url", target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target %q has unsupported scheme", target)
	}
	if _, err := domain.ParseTarget(u.Hostname()); err != nil {
		return fmt.Errorf("target %q has invalid host", target)
	}
	return nil
}

func singleTarget(req domain.ToolRequest) (string, error) {
	if len(req.Targets) != 1 {
		return "", fmt.Errorf("expected exactly one target, got %d", len(req.Targets))
	}
	return req.Targets[0], nil
}
