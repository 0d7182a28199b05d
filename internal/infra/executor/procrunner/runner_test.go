//go:build unix

package procrunner

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/automaton-recon/internal/domain/recon"
)

func TestExecuteCapturesOutput(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	res, err := r.Execute(context.Background(), domain.Command{
		Binary: "echo",
		Args:   []string{"hello"},
	}, 10*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", string(res.Stdout))
	assert.False(t, res.TimedOut)
	assert.False(t, res.Truncated)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestExecuteNonzeroExit(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	res, err := r.Execute(context.Background(), domain.Command{
		Binary: "ls",
		Args:   []string{"/definitely-not-a-real-path-12345"},
	}, 10*time.Second)
	require.NoError(t, err)

	assert.NotZero(t, res.ExitCode)
	assert.NotEmpty(t, res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestExecuteTimeoutKillsProcess(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	start := time.Now()
	res, err := r.Execute(context.Background(), domain.Command{
		Binary: "sleep",
		Args:   []string{"30"},
	}, 200*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteContextCancel(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res, err := r.Execute(ctx, domain.Command{
		Binary: "sleep",
		Args:   []string{"30"},
	}, time.Minute)
	require.NoError(t, err)

	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteMissingBinary(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	_, err := r.Execute(context.Background(), domain.Command{
		Binary: "definitely-not-installed-tool-xyz",
	}, time.Second)
	require.Error(t, err)

	var rerr *domain.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "definitely-not-installed-tool-xyz", rerr.Binary)
}

func TestExecuteTruncatesNoisyOutput(t *testing.T) {
	r := New(Config{TempDir: t.TempDir(), BufferCap: 1024})

	res, err := r.Execute(context.Background(), domain.Command{
		Binary: "dd",
		Args:   []string{"if=/dev/zero", "bs=1024", "count=64"},
	}, 10*time.Second)
	require.NoError(t, err)

	assert.True(t, res.Truncated)
	assert.Len(t, res.Stdout, 1024)
}

func TestWorkspaceLifecycle(t *testing.T) {
	r := New(Config{TempDir: t.TempDir()})

	dir, cleanup, err := r.Workspace(domain.ToolNmap)
	require.NoError(t, err)
	require.DirExists(t, dir)

	require.NoError(t, os.WriteFile(dir+"/out.xml", []byte("<x/>"), 0o644))
	cleanup()
	assert.NoDirExists(t, dir)
}
