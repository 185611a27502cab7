package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (*Workspace, *ShellRunner) {
	t.Helper()
	requireBinary(t, "git")
	ws := newTestWorkspace(t)
	r := NewShellRunner(ws.Root(), 10*time.Second, nil)
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "Dev"},
		{"config", "commit.gpgsign", "false"},
	} {
		res, err := r.Run(ctx, "git", args, "")
		require.NoError(t, err)
		require.True(t, res.Success(), res.Stderr)
	}
	return ws, r
}

func TestGitWorkflow(t *testing.T) {
	ws, r := initRepo(t)
	ctx := context.Background()
	writeFile(t, ws.Root(), "main.go", "package main\n")

	out, err := (&GitStatusTool{runner: r}).Execute(ctx, nil)
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, StatusSuccess, got["status"])
	assert.Contains(t, got["output"], "main.go")

	add := &GitAddTool{runner: r}
	out, err = add.Execute(ctx, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, StatusError, Status(out))
	out, err = add.Execute(ctx, map[string]any{"files": []any{"main.go"}, "all": true})
	require.NoError(t, err)
	assert.Equal(t, StatusError, Status(out))
	out, err = add.Execute(ctx, map[string]any{"files": []any{"main.go"}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, Status(out), out)

	commit := &GitCommitTool{runner: r}
	out, err = commit.Execute(ctx, map[string]any{"message": "  "})
	require.NoError(t, err)
	assert.Equal(t, StatusError, Status(out))
	out, err = commit.Execute(ctx, map[string]any{"message": "Initial commit"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, Status(out), out)

	writeFile(t, ws.Root(), "README.md", "# demo\n")
	out, err = commit.Execute(ctx, map[string]any{"message": "Add readme", "all": true})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, Status(out), out)

	history := &GitHistoryTool{runner: r, ws: ws}
	out, err = history.Execute(ctx, map[string]any{"limit": float64(1)})
	require.NoError(t, err)
	got = decode(t, out)
	require.Equal(t, StatusSuccess, got["status"], out)
	commits := got["commits"].([]any)
	require.Len(t, commits, 1)
	assert.Equal(t, "Add readme", commits[0].(map[string]any)["message"])

	out, err = history.Execute(ctx, map[string]any{"path": "main.go"})
	require.NoError(t, err)
	commits = decode(t, out)["commits"].([]any)
	require.Len(t, commits, 1)
	assert.Equal(t, "Initial commit", commits[0].(map[string]any)["message"])

	out, err = history.Execute(ctx, map[string]any{"path": "../elsewhere"})
	require.NoError(t, err)
	assert.Equal(t, StatusError, Status(out))
}

func TestGitPushWithoutRemoteFails(t *testing.T) {
	_, r := initRepo(t)
	out, err := (&GitPushTool{runner: r}).Execute(context.Background(), map[string]any{"remote": "nowhere", "branch": "main"})
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, StatusError, got["status"])
	assert.Equal(t, "git push nowhere main", got["command"])
}
