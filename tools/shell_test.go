package tools

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func requireBinary(t *testing.T, name string) {
	t.Helper()
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
}

func TestShellRunner(t *testing.T) {
	requireBinary(t, "sh")
	dir := t.TempDir()
	r := NewShellRunner(dir, 5*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	res, err := r.Run(ctx, "sh", []string{"-c", "pwd; echo oops >&2"}, "")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Contains(t, res.Stdout, dir)
	assert.Equal(t, "oops\n", res.Stderr)

	res, err = r.Run(ctx, "sh", []string{"-c", "exit 3"}, "")
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitCode)

	res, err = r.Run(ctx, "sh", []string{"-c", "cat"}, "piped input")
	require.NoError(t, err)
	assert.Equal(t, "piped input", res.Stdout)
}

func TestShellRunnerTimeout(t *testing.T) {
	requireBinary(t, "sleep")
	r := NewShellRunner(t.TempDir(), 300*time.Millisecond, zaptest.NewLogger(t))
	r.pollInterval = 20 * time.Millisecond

	started := time.Now()
	res, err := r.Run(context.Background(), "sleep", []string{"10"}, "")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.True(t, res.TimedOut)
	assert.Equal(t, "Command timed out after 0.3 seconds.", res.ErrorMessage)

	got := decode(t, outcome(res, "ok", "Failed"))
	assert.Equal(t, StatusError, got["status"])
	assert.Equal(t, "Command timed out after 0.3 seconds.", got["error_message"])
}

func TestShellRunnerCancel(t *testing.T) {
	requireBinary(t, "sleep")
	r := NewShellRunner(t.TempDir(), time.Minute, nil)
	r.pollInterval = 20 * time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "sleep", []string{"10"}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShellRunnerRejectsUnsafeCommandNames(t *testing.T) {
	r := NewShellRunner(t.TempDir(), time.Second, nil)
	for _, name := range []string{"", "ls;rm", "a|b", "$(id)", "echo hi", "`id`"} {
		_, err := r.Run(context.Background(), name, nil, "")
		assert.Error(t, err, name)
	}
}

func TestExecuteCommand(t *testing.T) {
	requireBinary(t, "echo")
	ws := newTestWorkspace(t)
	tool := &ExecuteCommandTool{
		runner:          NewShellRunner(ws.Root(), 5*time.Second, nil),
		allowedCommands: []string{`echo .*`, `go (test|vet) \./\.\.\.`, `[invalid`},
	}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{"command": "echo hello world"})
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, StatusSuccess, got["status"])
	assert.Equal(t, "hello world\n", got["output"])

	out, err = tool.Execute(ctx, map[string]any{"command": "rm -rf /"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, Status(out))

	// Patterns are anchored: a prefix match is not enough.
	assert.False(t, tool.isCommandAllowed("go test ./... && rm -rf /"))
	assert.True(t, tool.isCommandAllowed("[invalid"))
	assert.True(t, strings.Contains(tool.Description(), "echo .*"))
}
