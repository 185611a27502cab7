package diff

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDegenerateInputs(t *testing.T) {
	assert.Empty(t, Lines(nil, nil))

	got := Lines(nil, []string{"a", "b"})
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, "", got[0].RemovedText())
	assert.Equal(t, "a\nb", got[0].AddedText())

	got = Lines([]string{"a", "b"}, nil)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].StartLine)
	assert.Equal(t, "a\nb", got[0].RemovedText())
	assert.Equal(t, "", got[0].AddedText())
}

func TestIdenticalInputHasNoHunks(t *testing.T) {
	for _, lines := range [][]string{
		{"a"},
		{"a", "b", "c"},
		{"", "", ""},
	} {
		assert.Empty(t, Lines(lines, lines))
	}
}

func TestGrouping(t *testing.T) {
	tests := []struct {
		name     string
		old, new []string
		want     []Hunk
	}{
		{
			name: "replace middle line",
			old:  []string{"a", "b", "c"},
			new:  []string{"a", "B", "c"},
			want: []Hunk{{StartLine: 2, Removed: []string{"b"}, Added: []string{"B"}}},
		},
		{
			name: "two separate changes",
			old:  []string{"a", "b", "c", "d", "e"},
			new:  []string{"a", "x", "c", "d", "y"},
			want: []Hunk{
				{StartLine: 2, Removed: []string{"b"}, Added: []string{"x"}},
				{StartLine: 5, Removed: []string{"e"}, Added: []string{"y"}},
			},
		},
		{
			name: "insertion in the middle",
			old:  []string{"a", "c"},
			new:  []string{"a", "b1", "b2", "c"},
			want: []Hunk{{StartLine: 2, Added: []string{"b1", "b2"}}},
		},
		{
			name: "append at end",
			old:  []string{"a"},
			new:  []string{"a", "b"},
			want: []Hunk{{StartLine: 2, Added: []string{"b"}}},
		},
		{
			name: "delete first line",
			old:  []string{"a", "b", "c"},
			new:  []string{"b", "c"},
			want: []Hunk{{StartLine: 1, Removed: []string{"a"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Lines(tt.old, tt.new)
			if d := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); d != "" {
				t.Errorf("Lines() mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestEveryHunkHasContent(t *testing.T) {
	got := Lines([]string{"x", "", "y"}, []string{"x", "y"})
	require.Len(t, got, 1)
	assert.Equal(t, []string{""}, got[0].Removed)
	assert.Empty(t, got[0].Added)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	alphabet := []string{"a", "b", "c", "d", ""}
	gen := func() []string {
		n := rng.Intn(12)
		out := make([]string, n)
		for i := range out {
			out[i] = alphabet[rng.Intn(len(alphabet))]
		}
		return out
	}

	for i := 0; i < 500; i++ {
		old, new := gen(), gen()
		got := Apply(old, Lines(old, new))
		if d := cmp.Diff(new, got, cmpopts.EquateEmpty()); d != "" {
			t.Fatalf("Apply(%q, Lines(%q, %q)) mismatch (-want +got):\n%s", old, old, new, d)
		}
	}
}

func TestMinimalEditScript(t *testing.T) {
	// Classic example from the Myers paper: the shortest script has 5 edits.
	old := []string{"a", "b", "c", "a", "b", "b", "a"}
	new := []string{"c", "b", "a", "b", "a", "c"}

	edits := 0
	for _, h := range Lines(old, new) {
		edits += len(h.Removed) + len(h.Added)
	}
	assert.Equal(t, 5, edits)
}

func TestStringsNormalizesLineEndings(t *testing.T) {
	assert.Empty(t, Strings("a\r\nb\r\n", "a\nb\n"))

	got := Strings("", "x")
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].AddedText())
}

func TestFile(t *testing.T) {
	dir := t.TempDir()

	hunks, err := File(filepath.Join(dir, "missing.txt"), "anything")
	require.NoError(t, err)
	assert.Empty(t, hunks)

	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))
	hunks, err = File(path, "package main\n\nfunc main() {\n\tprintln(1)\n}\n")
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, 3, hunks[0].StartLine)
	assert.Equal(t, "func main() {}", hunks[0].RemovedText())
	assert.Equal(t, "func main() {\n\tprintln(1)\n}", hunks[0].AddedText())
}

func TestHunkJSONShape(t *testing.T) {
	raw, err := json.Marshal([]Hunk{{StartLine: 4, Removed: []string{"old"}, Added: []string{"n1", "n2"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"line":4,"-":"old","+":"n1\nn2"}]`, string(raw))
}
