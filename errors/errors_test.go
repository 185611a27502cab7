package errors

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCarriesCallSite(t *testing.T) {
	err := New("tool '%s' missing", "read_file")
	assert.True(t, strings.HasPrefix(err.Error(), "[errors_test.go:"), err.Error())
	assert.Contains(t, err.Error(), "tool 'read_file' missing")
}

func TestWrapf(t *testing.T) {
	assert.NoError(t, Wrapf(nil, "ignored"))

	err := Wrapf(io.EOF, "reading %s", "history.json")
	require.Error(t, err)
	assert.True(t, Is(err, io.EOF))
	assert.Contains(t, err.Error(), "reading history.json: EOF")
}

func TestConfigError(t *testing.T) {
	err := fmt.Errorf("startup: %w", &ConfigError{Key: "read_file", Reason: "tool already registered"})
	assert.True(t, IsConfigError(err))
	assert.False(t, IsConfigError(io.EOF))

	var ce *ConfigError
	require.True(t, As(err, &ce))
	assert.Equal(t, "read_file", ce.Key)
	assert.Equal(t, "configuration error: bad", (&ConfigError{Reason: "bad"}).Error())
}
