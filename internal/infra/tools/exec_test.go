package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

type fakeRunner struct {
	res     domain.ProcessResult
	err     error
	onExec  func(cmd domain.Command)
	lastCmd domain.Command
	lastTO  time.Duration
	dir     string
	cleaned bool
}

func (f *fakeRunner) Execute(ctx context.Context, cmd domain.Command, timeout time.Duration) (domain.ProcessResult, error) {
	f.lastCmd = cmd
	f.lastTO = timeout
	if f.onExec != nil {
		f.onExec(cmd)
	}
	return f.res, f.err
}

func (f *fakeRunner) Workspace(tool domain.Tool) (string, func(), error) {
	return f.dir, func() { f.cleaned = true }, nil
}

func lineAdapter(r domain.Runner, opts domain.ToolOptions) *execAdapter {
	return &execAdapter{
		spec: spec{
			name:        "fake",
			stage:       domain.StageDiscovery,
			minProfile:  domain.ProfilePassive,
			targetKinds: []domain.TargetKind{domain.TargetDomain},
			produces:    []domain.FindingKind{domain.KindSubdomain},
			maxRuntime:  time.Minute,
		},
		runner: r,
		opts:   opts,
		build: func(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
			return domain.Command{Binary: "fake", Args: []string{"-d", req.Targets[0]}, Dir: dir}, "", nil
		},
		parse: func(req domain.ToolRequest, data []byte, at time.Time) ([]domain.Finding, error) {
			var out []domain.Finding
			for _, line := range strings.Fields(string(data)) {
				f, err := domain.NewFinding(domain.KindSubdomain, line, "fake", at, nil)
				if err != nil {
					return out, err
				}
				out = append(out, f)
			}
			return out, nil
		},
	}
}

func reqFor(target string) domain.ToolRequest {
	return domain.ToolRequest{ScanID: "scan-1", Profile: domain.ProfileActive, Targets: []string{target}}
}

func TestExecAdapterSuccess(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: 0, Stdout: []byte("a.example.com\nb.example.com\n")},
	}
	a := lineAdapter(r, domain.ToolOptions{})

	out := a.Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeSuccess, out.Status)
	assert.Len(t, out.Findings, 2)
	assert.Equal(t, "2 findings", out.Message)
	assert.Equal(t, time.Minute, r.lastTO)
	assert.True(t, r.cleaned)
	require.Len(t, out.Raw, 1)
	assert.Equal(t, "stdout.txt", out.Raw[0].Name)
}

func TestExecAdapterTruncatedFlagged(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: 0, Stdout: []byte("a.example.com\n"), Truncated: true},
	}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeSuccess, out.Status)
	assert.Contains(t, out.Message, "output truncated")
}

func TestExecAdapterTimeoutOverride(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir(), res: domain.ProcessResult{ExitCode: 0, Stdout: []byte("a.example.com")}}
	a := lineAdapter(r, domain.ToolOptions{Timeout: 5 * time.Second, ExtraArgs: []string{"-rate", "10"}})

	a.Run(context.Background(), reqFor("example.com"))

	assert.Equal(t, 5*time.Second, r.lastTO)
	assert.Equal(t, []string{"-d", "example.com", "-rate", "10"}, r.lastCmd.Args)
}

func TestExecAdapterNonzeroExit(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: 2, Stderr: []byte("permission denied")},
	}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeFailure, out.Status)
	assert.Contains(t, out.Message, "exit 2")
	assert.Contains(t, out.Message, "permission denied")
}

func TestExecAdapterExitOKOverride(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: 2, Stdout: []byte("a.example.com")},
	}
	a := lineAdapter(r, domain.ToolOptions{})
	a.exitOK = func(res domain.ProcessResult) bool { return res.ExitCode <= 2 }

	out := a.Run(context.Background(), reqFor("example.com"))
	assert.Equal(t, domain.OutcomeSuccess, out.Status)
}

func TestExecAdapterTimedOut(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: -1, TimedOut: true, Duration: 100 * time.Millisecond},
	}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeTimeout, out.Status)
	assert.Contains(t, out.Message, "wall clock exceeded")
}

func TestExecAdapterEmptyOutput(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir(), res: domain.ProcessResult{ExitCode: 0}}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeParseWarning, out.Status)
	assert.Equal(t, "empty output", out.Message)

	var warn *domain.ParseWarning
	require.ErrorAs(t, out.Err, &warn)
}

func TestExecAdapterParseErrorKeepsFindings(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		res: domain.ProcessResult{ExitCode: 0, Stdout: []byte("good.example.com !!\n")},
	}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeParseWarning, out.Status)
	assert.Len(t, out.Findings, 1)
}

func TestExecAdapterMissingBinary(t *testing.T) {
	r := &fakeRunner{
		dir: t.TempDir(),
		err: &domain.ResourceError{Binary: "fake", Err: errors.New("not found in $PATH")},
	}
	out := lineAdapter(r, domain.ToolOptions{}).Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeFailure, out.Status)
	var rerr *domain.ResourceError
	require.ErrorAs(t, out.Err, &rerr)
	assert.Equal(t, domain.Tool("fake"), rerr.Tool)
	assert.True(t, r.cleaned)
}

func TestExecAdapterOutputFile(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}
	a := lineAdapter(r, domain.ToolOptions{})
	a.build = func(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
		return domain.Command{Binary: "fake", Dir: dir}, filepath.Join(dir, "out.txt"), nil
	}
	r.onExec = func(cmd domain.Command) {
		_ = os.WriteFile(filepath.Join(cmd.Dir, "out.txt"), []byte("c.example.com\n"), 0o600)
	}

	out := a.Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeSuccess, out.Status)
	require.Len(t, out.Findings, 1)
	assert.Equal(t, "c.example.com", out.Findings[0].Value)
	require.NotEmpty(t, out.Raw)
	assert.Equal(t, "out.txt", out.Raw[0].Name)
}

func TestExecAdapterMissingOutputFile(t *testing.T) {
	r := &fakeRunner{dir: t.TempDir()}
	a := lineAdapter(r, domain.ToolOptions{})
	a.build = func(a *execAdapter, req domain.ToolRequest, dir string) (domain.Command, string, error) {
		return domain.Command{Binary: "fake", Dir: dir}, filepath.Join(dir, "never-written.json"), nil
	}

	out := a.Run(context.Background(), reqFor("example.com"))

	require.Equal(t, domain.OutcomeParseWarning, out.Status)
	assert.Contains(t, out.Message, "output file missing")
}

func TestProfilesFromMinimum(t *testing.T) {
	a := lineAdapter(&fakeRunner{}, domain.ToolOptions{})
	assert.Equal(t, []domain.Profile{domain.ProfilePassive, domain.ProfileActive, domain.ProfileFull}, a.Profiles())

	a.minProfile = domain.ProfileActive
	assert.Equal(t, []domain.Profile{domain.ProfileActive, domain.ProfileFull}, a.Profiles())

	a.minProfile = domain.ProfileFull
	assert.Equal(t, []domain.Profile{domain.ProfileFull}, a.Profiles())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail([]byte("  short \n"), 10))
	long := strings.Repeat("x", 50) + "end"
	assert.Equal(t, "xxend", tail([]byte(long), 5))
}

func TestTargetGuards(t *testing.T) {
	assert.NoError(t, checkDomain("example.com"))
	assert.Error(t, checkDomain("10.0.0.1"))
	assert.Error(t, checkDomain("example.com; rm -rf /"))

	assert.NoError(t, checkHostish("10.0.0.0/24"))
	assert.Error(t, checkHostish("$(whoami).com"))

	assert.NoError(t, checkURL("http://example.com"))
	assert.NoError(t, checkURL("https://10.0.0.1:8443"))
	assert.Error(t, checkURL("ftp://example.com"))
	assert.Error(t, checkURL("http://bad host"))
}
