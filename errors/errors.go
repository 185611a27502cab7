package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", caller(), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", caller(), fmt.Sprintf(format, a...), err)
}

// ConfigError reports a fatal configuration problem, such as two tools
// registered under the same name.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error for '%s': %s", e.Key, e.Reason)
}

// IsConfigError reports whether any error in err's chain is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return stderrors.As(err, &ce)
}

// Is and As mirror the standard library so callers only need this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func caller() string {
	// skip caller() and the exported helper
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
