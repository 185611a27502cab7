// Package storage keeps small JSON collections on disk, one file per
// collection, under a single base directory.
//
// A Collection is loaded lazily on first use and kept in memory afterwards.
// Every mutation rewrites the whole file while holding an exclusive flock on
// it; loads take a shared lock, so a reader never observes a half-written
// array. The design assumes one process works on a collection at a time.
package storage

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/m4xw311/mallard/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var collectionName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Storage is the base directory all collections live in.
type Storage struct {
	baseDir string
}

// New creates the base directory if needed and checks it is writable.
func New(baseDir string) (*Storage, error) {
	if baseDir == "" {
		return nil, &errors.ConfigError{Key: "data_dir", Reason: "storage path is not configured"}
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create storage directory %s", baseDir)
	}
	if err := unix.Access(baseDir, unix.W_OK); err != nil {
		return nil, errors.Wrapf(err, "storage directory %s is not writable", baseDir)
	}
	return &Storage{baseDir: baseDir}, nil
}

// BaseDir returns the directory collections are stored in.
func (s *Storage) BaseDir() string { return s.baseDir }

// Collection is an ordered list of records of type T backed by <name>.json.
// It is not safe for concurrent use.
type Collection[T any] struct {
	path   string
	data   []T
	loaded bool
	logger *zap.Logger
}

// Open returns the collection called name. The file itself is created on the
// first write.
func Open[T any](s *Storage, name string, logger *zap.Logger) (*Collection[T], error) {
	if !collectionName.MatchString(name) {
		return nil, &errors.ConfigError{Key: name, Reason: "invalid collection name: only letters, digits, '_' and '-' are allowed"}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collection[T]{
		path:   filepath.Join(s.baseDir, name+".json"),
		logger: logger.With(zap.String("collection", name)),
	}, nil
}

// Path returns the backing file of the collection.
func (c *Collection[T]) Path() string { return c.path }

func (c *Collection[T]) load() error {
	if c.loaded {
		return nil
	}

	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		c.data = nil
		c.loaded = true
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "storage collection file is not readable: %s", c.path)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return errors.Wrapf(err, "could not acquire shared lock on %s", c.path)
	}
	raw, err := io.ReadAll(f)
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err != nil {
		return errors.Wrapf(err, "failed to read storage collection file %s", c.path)
	}

	c.data = nil
	if len(bytes.TrimSpace(raw)) > 0 {
		var decoded []T
		if err := json.Unmarshal(raw, &decoded); err != nil {
			// A damaged file must not take the whole command down with it.
			c.logger.Warn("collection file is not a JSON array of records, resetting to empty",
				zap.String("path", c.path), zap.Error(err))
		} else {
			c.data = decoded
		}
	}
	c.loaded = true
	return nil
}

// save rewrites the whole file under an exclusive lock:
// lock, truncate, write, fsync, unlock.
func (c *Collection[T]) save() error {
	data := c.data
	if data == nil {
		data = []T{}
	}
	encoded, err := json.MarshalIndent(data, "", "    ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode collection %s", c.path)
	}

	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open storage collection file %s", c.path)
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return errors.Wrapf(err, "could not acquire exclusive lock on %s", c.path)
	}
	defer unix.Flock(fd, unix.LOCK_UN)

	if err := f.Truncate(0); err != nil {
		return errors.Wrapf(err, "failed to truncate %s", c.path)
	}
	if _, err := f.WriteAt(encoded, 0); err != nil {
		return errors.Wrapf(err, "failed to write to storage collection file %s", c.path)
	}
	if err := f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to flush %s", c.path)
	}
	return nil
}

// All returns a copy of every record in order.
func (c *Collection[T]) All() ([]T, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	out := make([]T, len(c.data))
	copy(out, c.data)
	return out, nil
}

// Count returns the number of records.
func (c *Collection[T]) Count() (int, error) {
	if err := c.load(); err != nil {
		return 0, err
	}
	return len(c.data), nil
}

// Add appends item and persists the collection immediately.
func (c *Collection[T]) Add(item T) error {
	if err := c.load(); err != nil {
		return err
	}
	c.data = append(c.data, item)
	return c.save()
}

// SetAll replaces every record without reading the file first.
func (c *Collection[T]) SetAll(items []T) error {
	c.data = append([]T(nil), items...)
	c.loaded = true
	return c.save()
}

// Clear removes every record without reading the file first.
func (c *Collection[T]) Clear() error {
	c.data = nil
	c.loaded = true
	return c.save()
}

// FindBy returns the records matching predicate, in order.
func (c *Collection[T]) FindBy(predicate func(T) bool) ([]T, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	var out []T
	for _, item := range c.data {
		if predicate(item) {
			out = append(out, item)
		}
	}
	return out, nil
}

// RemoveBy drops the records matching predicate and returns how many were
// removed. The file is only rewritten when something was removed.
func (c *Collection[T]) RemoveBy(predicate func(T) bool) (int, error) {
	if err := c.load(); err != nil {
		return 0, err
	}
	kept := c.data[:0:0]
	for _, item := range c.data {
		if !predicate(item) {
			kept = append(kept, item)
		}
	}
	removed := len(c.data) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	c.data = kept
	return removed, c.save()
}
