package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindTextInFiles(t *testing.T) {
	ws := newTestWorkspace(t)
	writeFile(t, ws.Root(), "main.go", "package main\n\n// TODO: wire flags\nfunc main() {}\n")
	writeFile(t, ws.Root(), "internal/server/server.go", "package server\n\nfunc NewServer() *Server {\n\treturn nil\n}\n")
	writeFile(t, ws.Root(), "README.md", "todo list\n")
	writeFile(t, ws.Root(), "vendor/dep/dep.go", "// TODO: vendored\n")
	tool := &FindTextInFilesTool{ws: ws}
	ctx := context.Background()

	run := func(args map[string]any) map[string]any {
		t.Helper()
		out, err := tool.Execute(ctx, args)
		require.NoError(t, err)
		return decode(t, out)
	}
	files := func(res map[string]any) []string {
		var out []string
		for _, r := range res["results"].([]any) {
			out = append(out, r.(map[string]any)["filename"].(string))
		}
		return out
	}

	res := run(map[string]any{"pattern": "TODO"})
	assert.Equal(t, StatusSuccess, res["status"])
	assert.Equal(t, []string{"main.go"}, files(res), "vendor is ignored, README differs in case")

	res = run(map[string]any{"pattern": "todo", "ignore_case": true})
	assert.ElementsMatch(t, []string{"main.go", "README.md"}, files(res))

	res = run(map[string]any{"pattern": "todo", "ignore_case": true, "file_mask": "*.go"})
	assert.Equal(t, []string{"main.go"}, files(res))

	res = run(map[string]any{"pattern": `/^func (\w+)\(/`, "path": "internal"})
	require.Len(t, res["results"], 1)
	match := res["results"].([]any)[0].(map[string]any)
	assert.Equal(t, "internal/server/server.go", match["filename"])
	assert.Equal(t, float64(3), match["line_number"])
	assert.Equal(t, []any{"func NewServer(", "NewServer"}, match["matches"])

	res = run(map[string]any{"pattern": "NewServer", "context_lines": 1})
	match = res["results"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{""}, match["context_before"])
	assert.Equal(t, []any{"\treturn nil"}, match["context_after"])

	res = run(map[string]any{"pattern": "TODO", "recursive": false, "path": "internal"})
	assert.Empty(t, res["results"])

	res = run(map[string]any{"pattern": "/[unclosed/"})
	assert.Equal(t, StatusError, res["status"])

	res = run(map[string]any{"pattern": "x", "path": "nowhere"})
	assert.Equal(t, StatusError, res["status"])
}

func TestMaskMatches(t *testing.T) {
	assert.True(t, maskMatches("*", "any/file"))
	assert.True(t, maskMatches("*.go", "internal/a.go"))
	assert.False(t, maskMatches("*.go", "internal/a.md"))
	assert.True(t, maskMatches("internal/**/*_test.go", "internal/x/y_test.go"))
	assert.False(t, maskMatches("internal/*.go", "cmd/main.go"))
}
