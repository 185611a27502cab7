package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/m4xw311/mallard/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type record struct {
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
}

func openTest(t *testing.T, dir string) *Collection[record] {
	t.Helper()
	s, err := New(dir)
	require.NoError(t, err)
	c, err := Open[record](s, "notes", zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestMissingFileIsEmpty(t *testing.T) {
	c := openTest(t, t.TempDir())

	all, err := c.All()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = os.Stat(c.Path())
	assert.True(t, os.IsNotExist(err), "reading must not create the file")
}

func TestAddPersistsImmediately(t *testing.T) {
	dir := t.TempDir()
	c := openTest(t, dir)

	require.NoError(t, c.Add(record{Kind: "summary", Content: "one"}))
	require.NoError(t, c.Add(record{Kind: "summary", Content: "two"}))

	reopened := openTest(t, dir)
	all, err := reopened.All()
	require.NoError(t, err)
	assert.Equal(t, []record{{"summary", "one"}, {"summary", "two"}}, all)

	raw, err := os.ReadFile(filepath.Join(dir, "notes.json"))
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2)
}

func TestCorruptFileResetsToEmpty(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"garbage": "{not json",
		"object":  `{"kind":"summary"}`,
		"blank":   "   \n",
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(body), 0o644))
			c := openTest(t, dir)

			n, err := c.Count()
			require.NoError(t, err)
			assert.Zero(t, n)

			require.NoError(t, c.Add(record{Kind: "fresh"}))
			all, err := openTest(t, dir).All()
			require.NoError(t, err)
			assert.Equal(t, []record{{Kind: "fresh"}}, all)
		})
	}
}

func TestSetAllAndClearBypassLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`[{"kind":"old"}]`), 0o644))

	c := openTest(t, dir)
	require.NoError(t, c.SetAll([]record{{Kind: "a"}, {Kind: "b"}}))
	all, err := openTest(t, dir).All()
	require.NoError(t, err)
	assert.Equal(t, []record{{Kind: "a"}, {Kind: "b"}}, all)

	require.NoError(t, c.Clear())
	raw, err := os.ReadFile(c.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestFindByAndRemoveBy(t *testing.T) {
	c := openTest(t, t.TempDir())
	require.NoError(t, c.SetAll([]record{{Kind: "user"}, {Kind: "tool"}, {Kind: "user"}}))

	users, err := c.FindBy(func(r record) bool { return r.Kind == "user" })
	require.NoError(t, err)
	assert.Len(t, users, 2)

	info, err := os.Stat(c.Path())
	require.NoError(t, err)
	before := info.ModTime()

	n, err := c.RemoveBy(func(r record) bool { return r.Kind == "missing" })
	require.NoError(t, err)
	assert.Zero(t, n)
	info, err = os.Stat(c.Path())
	require.NoError(t, err)
	assert.Equal(t, before, info.ModTime(), "nothing removed, nothing written")

	n, err = c.RemoveBy(func(r record) bool { return r.Kind == "user" })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	all, err := c.All()
	require.NoError(t, err)
	assert.Equal(t, []record{{Kind: "tool"}}, all)
}

func TestAllReturnsCopy(t *testing.T) {
	c := openTest(t, t.TempDir())
	require.NoError(t, c.Add(record{Kind: "a"}))

	all, err := c.All()
	require.NoError(t, err)
	all[0].Kind = "mutated"

	again, err := c.All()
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Kind)
}

func TestInvalidCollectionName(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../escape", "", "with space", "a/b"} {
		_, err := Open[record](s, name, nil)
		assert.True(t, errors.IsConfigError(err), name)
	}
}

func TestUnreadableFileIsAnError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores file permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o000))

	_, err := openTest(t, dir).All()
	assert.Error(t, err)
}
