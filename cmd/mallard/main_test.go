package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/mallard/agent/terminal"
	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/llm"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newProject creates a project directory using the mock backend, makes it
// the working directory and points HOME at an empty directory.
func newProject(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".mallard"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mallard", "config.yaml"), []byte("llm: mock\n"), 0o644))
	t.Chdir(root)
	return root
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func openHistory(t *testing.T, root string) *session.History {
	t.Helper()
	s, err := storage.New(filepath.Join(root, ".mallard"))
	require.NoError(t, err)
	h, err := session.OpenHistory(s, nil)
	require.NoError(t, err)
	return h
}

func TestRunCommand(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, "", "run", "hello", "there")
	require.NoError(t, err)
	assert.Contains(t, out, "You said: 'hello there'")

	stored, err := openHistory(t, root).All()
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, session.RoleUser, stored[0].Role)
	assert.Equal(t, "hello there", stored[0].Content)
	assert.FileExists(t, filepath.Join(root, ".mallard", "mallard.log"))
}

func TestRunCommandRequiresPrompt(t *testing.T) {
	newProject(t)
	_, err := execute(t, "", "run")
	assert.Error(t, err)
}

func TestChatWithPipedInput(t *testing.T) {
	newProject(t)

	out, err := execute(t, "what is this?\nexit\nignored\n", "--skip-index")
	require.NoError(t, err)
	assert.Contains(t, out, "Welcome to Mallard")
	assert.Contains(t, out, "You said: 'what is this?'")
	assert.NotContains(t, out, "ignored")
	assert.NotContains(t, out, "indexing")
}

func TestChatIndexesFirstRun(t *testing.T) {
	root := newProject(t)

	out, err := execute(t, "exit\n")
	require.NoError(t, err)
	assert.Contains(t, out, "Project codebase first indexing...")

	out, err = execute(t, "exit\n")
	require.NoError(t, err)
	assert.NotContains(t, out, "indexing")
	assert.FileExists(t, filepath.Join(root, ".mallard", "indexer.json"))
}

func TestInvalidMode(t *testing.T) {
	newProject(t)
	_, err := execute(t, "", "--mode", "reckless", "run", "hi")
	assert.ErrorContains(t, err, "invalid mode")
}

func TestClearCommand(t *testing.T) {
	root := newProject(t)
	require.NoError(t, openHistory(t, root).Add(session.NewUserMessage("remember me")))

	out, err := execute(t, "n\n", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "History kept.")
	stored, err := openHistory(t, root).All()
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	out, err = execute(t, "", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "History cleared.")
	stored, err = openHistory(t, root).All()
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestConfigSet(t *testing.T) {
	newProject(t)

	out, err := execute(t, "", "config", "set", "model", "gpt-test")
	require.NoError(t, err)
	path, err := config.UserConfigPath()
	require.NoError(t, err)
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "model: gpt-test")

	_, err = execute(t, "", "config", "set", "allowed_commands", "rm")
	assert.Error(t, err)
}

func TestNewAppToolset(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Toolsets = []config.Toolset{
		{Name: "default", Tools: []string{"read_file", "git_*"}},
		{Name: "readonly", Tools: []string{"read_file", "list_directory"}},
	}
	out := &bytes.Buffer{}
	opts := appOptions{
		Mode:      "prompt",
		Verbosity: "info",
		Client:    llm.NewScriptedClient(),
		Input:     terminal.NewPlainInput(strings.NewReader(""), out),
		Output:    out,
	}
	logger := zaptest.NewLogger(t)

	a, err := newApp(context.Background(), cfg, root, opts, logger)
	require.NoError(t, err)
	names := toolNames(a)
	assert.Contains(t, names, "read_file")
	assert.Contains(t, names, "git_status")
	assert.NotContains(t, names, "create_file")
	require.NoError(t, a.Close())

	opts.Toolset = "readonly"
	a, err = newApp(context.Background(), cfg, root, opts, logger)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"read_file", "list_directory"}, toolNames(a))
	require.NoError(t, a.Close())

	cfg.Toolsets = nil
	opts.Toolset = "missing"
	_, err = newApp(context.Background(), cfg, root, opts, logger)
	assert.Error(t, err)
}

func toolNames(a *app) []string {
	var names []string
	for _, t := range a.registry.All() {
		names = append(names, t.Name())
	}
	return names
}
