// Package logging builds the zap logger shared by every component. Stdout
// belongs to the conversation, so logs go to a file in the data directory.
package logging

import (
	"os"
	"path/filepath"

	"github.com/m4xw311/mallard/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const FileName = "mallard.log"

// New returns a JSON logger appending to <dataDir>/mallard.log. verbose
// lowers the level to Debug.
func New(dataDir string, verbose bool) (*zap.Logger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data directory %s", dataDir)
	}

	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.Sampling = nil
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{filepath.Join(dataDir, FileName)}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to initialize logger")
	}
	return logger, nil
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
