package procrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// Config is passed in at construction; the runner keeps no ambient globals.
type Config struct {
	TempDir   string
	BufferCap int // per-stream stdout/stderr cap in bytes
	Env       []string
}

const defaultBufferCap = 16 << 20 // 16 MiB

type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = defaultBufferCap
	}
	if cfg.Env == nil {
		// minimal environment; LC_ALL=C keeps tool output parseable
		cfg.Env = []string{
			"PATH=" + os.Getenv("PATH"),
			"HOME=" + os.Getenv("HOME"),
			"LANG=C",
			"LC_ALL=C",
		}
	}
	return &Runner{cfg: cfg}
}

// Execute spawns the command directly (argv list, never a shell) and
// enforces a hard wall-clock timeout. On expiry or context cancellation
// the whole process group is killed, not just the immediate child.
func (r *Runner) Execute(ctx context.Context, cmd domain.Command, timeout time.Duration) (domain.ProcessResult, error) {
	start := time.Now()

	path, err := exec.LookPath(cmd.Binary)
	if err != nil {
		return domain.ProcessResult{}, &domain.ResourceError{Binary: cmd.Binary, Err: err}
	}

	c := exec.Command(path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = r.cfg.Env
	if len(cmd.Env) > 0 {
		c.Env = append(append([]string{}, r.cfg.Env...), cmd.Env...)
	}

	stdout := &capWriter{limit: r.cfg.BufferCap}
	stderr := &capWriter{limit: r.cfg.BufferCap}
	c.Stdout = stdout
	c.Stderr = stderr
	setProcGroup(c)

	if err := c.Start(); err != nil {
		return domain.ProcessResult{}, fmt.Errorf("start %s: %w", cmd.Binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	timedOut := false
	select {
	case err = <-done:
	case <-timer.C:
		timedOut = true
		killTree(c)
		err = <-done
	case <-ctx.Done():
		timedOut = true
		killTree(c)
		err = <-done
	}

	exitCode := 0
	if err != nil {
		var ee *exec.ExitError
		switch {
		case errors.As(err, &ee):
			exitCode = ee.ExitCode()
		case timedOut:
			exitCode = -1
		default:
			return domain.ProcessResult{}, fmt.Errorf("run %s: %w", cmd.Binary, err)
		}
	}

	return domain.ProcessResult{
		ExitCode:  exitCode,
		Stdout:    stdout.bytes(),
		Stderr:    stderr.bytes(),
		Truncated: stdout.truncated || stderr.truncated,
		TimedOut:  timedOut,
		Duration:  time.Since(start),
	}, nil
}

// Workspace creates a scratch directory for one invocation. The cleanup
// func removes it whatever happened to the invocation.
func (r *Runner) Workspace(tool domain.Tool) (string, func(), error) {
	if err := os.MkdirAll(r.cfg.TempDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.cfg.TempDir, "recon-"+string(tool)+"-")
	if err != nil {
		return "", nil, fmt.Errorf("workspace: %w", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			logrus.WithError(err).WithField("dir", dir).Warn("workspace cleanup failed")
		}
	}
	return dir, cleanup, nil
}

// capWriter keeps at most limit bytes and flags the overflow. It keeps
// reporting full writes so the child's pipe stays drained.
type capWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (w *capWriter) Write(p []byte) (int, error) {
	remain := w.limit - w.buf.Len()
	if remain <= 0 {
		if len(p) > 0 {
			w.truncated = true
		}
		return len(p), nil
	}
	if len(p) > remain {
		w.buf.Write(p[:remain])
		w.truncated = true
		return len(p), nil
	}
	w.buf.Write(p)
	return len(p), nil
}

func (w *capWriter) bytes() []byte { return w.buf.Bytes() }
