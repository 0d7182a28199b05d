package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

// Runner executes tool commands in throwaway containers instead of host
// processes. The scratch workspace is bind-mounted at the same path
// inside the container, so output files land where the adapters' parsers
// expect them. Images must use the tool as their entrypoint, which is
// the convention for the default set.
type Runner struct {
	cfg Config
	// dedicated source keeps container names unique without touching
	// the global rand state
	rand *rand.Rand
}

type Config struct {
	TempDir   string
	BufferCap int               // per-stream stdout/stderr cap in bytes
	Images    map[string]string // binary base name -> image, merged over defaults
	Network   string            // docker network, default host
	ExtraArgs []string          // extra docker run flags, e.g. --cap-add=NET_RAW
}

const defaultBufferCap = 16 << 20 // 16 MiB

// defaultImages covers the tools with a maintained public image. Masscan
// is deliberately absent: it needs raw sockets and a capability grant,
// so the operator picks the image and the ExtraArgs together.
var defaultImages = map[string]string{
	"subfinder":    "projectdiscovery/subfinder:latest",
	"amass":        "caffix/amass:latest",
	"theHarvester": "secsi/theharvester:latest",
	"dnsenum":      "secsi/dnsenum:latest",
	"nmap":         "instrumentisto/nmap:latest",
	"whatweb":      "secsi/whatweb:latest",
	"gobuster":     "secsi/gobuster:latest",
	"dirsearch":    "secsi/dirsearch:latest",
}

func New(cfg Config) *Runner {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = defaultBufferCap
	}
	if cfg.Network == "" {
		cfg.Network = "host"
	}
	return &Runner{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute runs the command in a fresh container with a hard wall-clock
// timeout. On expiry the container is force-removed, not just the
// docker client.
func (r *Runner) Execute(ctx context.Context, cmd domain.Command, timeout time.Duration) (domain.ProcessResult, error) {
	start := time.Now()

	if _, err := exec.LookPath("docker"); err != nil {
		return domain.ProcessResult{}, &domain.ResourceError{Binary: "docker", Err: err}
	}

	image, err := r.image(cmd.Binary)
	if err != nil {
		return domain.ProcessResult{}, err
	}
	name := fmt.Sprintf("recon-%s-%d", filepath.Base(cmd.Binary), r.rand.Int63())

	c := exec.Command("docker", r.runArgs(cmd, image, name)...)
	stdout := &capWriter{limit: r.cfg.BufferCap}
	stderr := &capWriter{limit: r.cfg.BufferCap}
	c.Stdout = stdout
	c.Stderr = stderr

	if err := c.Start(); err != nil {
		return domain.ProcessResult{}, fmt.Errorf("start docker: %w", err)
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
		r.remove(name)
		err = <-done
	case <-ctx.Done():
		timedOut = true
		r.remove(name)
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

// runArgs builds the docker run argv. The workspace mount keeps host and
// container paths identical; LC_ALL=C keeps tool output parseable; the
// container runs as the host uid so workspace cleanup still works.
func (r *Runner) runArgs(cmd domain.Command, image, name string) []string {
	args := []string{"run", "--rm", "--name", name, "--network", r.cfg.Network}
	if cmd.Dir != "" {
		args = append(args, "-v", cmd.Dir+":"+cmd.Dir, "-w", cmd.Dir)
	}
	args = append(args, "-e", "LANG=C", "-e", "LC_ALL=C")
	for _, e := range cmd.Env {
		args = append(args, "-e", e)
	}
	if uid := os.Getuid(); uid >= 0 {
		args = append(args, "-u", fmt.Sprintf("%d:%d", uid, os.Getgid()))
	}
	args = append(args, r.cfg.ExtraArgs...)
	args = append(args, image)
	return append(args, cmd.Args...)
}

func (r *Runner) image(binary string) (string, error) {
	base := filepath.Base(binary)
	if img, ok := r.cfg.Images[base]; ok {
		return img, nil
	}
	if img, ok := defaultImages[base]; ok {
		return img, nil
	}
	return "", fmt.Errorf("no image mapped for %q, set recon.docker.images.%s", base, base)
}

// remove force-kills the named container. Best effort, the --rm flag
// cannot be trusted once the client is gone.
func (r *Runner) remove(name string) {
	if err := exec.Command("docker", "rm", "-f", name).Run(); err != nil {
		logrus.WithError(err).WithField("container", name).Warn("container remove failed")
	}
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
// reporting full writes so the client's pipe stays drained.
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
