package tools

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/errors"
)

var invalidPathChars = regexp.MustCompile(`[\x00-\x1F\x7F<>:"|?*]`)

// Workspace confines file tools to the project root. Paths handed in by the
// model are relative, slash-separated and may not leave the root, directly
// or through symlinks.
type Workspace struct {
	root       string
	access     config.FilesystemAccess
	ignoreDirs []string
}

func NewWorkspace(root string, access config.FilesystemAccess, ignoreDirs []string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve project root %s", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve project root %s", root)
	}
	return &Workspace{root: resolved, access: access, ignoreDirs: ignoreDirs}, nil
}

func (w *Workspace) Root() string { return w.root }

// Clean validates p and returns it in canonical slash form; the project root
// itself is ".".
func (w *Workspace) Clean(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	var parts []string
	for _, part := range strings.Split(p, "/") {
		switch {
		case part == "" || part == ".":
			continue
		case part == "..":
			return "", errors.New("path cannot contain '..' components")
		case invalidPathChars.MatchString(part):
			return "", errors.New("path component '%s' contains invalid characters", part)
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return ".", nil
	}
	return strings.Join(parts, "/"), nil
}

// Resolve cleans p and returns it together with its absolute location. The
// target may not exist yet; its nearest existing ancestor must resolve inside
// the root.
func (w *Workspace) Resolve(p string) (rel, abs string, err error) {
	rel, err = w.Clean(p)
	if err != nil {
		return "", "", err
	}
	abs = filepath.Join(w.root, filepath.FromSlash(rel))

	probe := abs
	for {
		resolved, err := filepath.EvalSymlinks(probe)
		if err == nil {
			if !w.contains(resolved) {
				return "", "", errors.New("access to '%s' is outside the project directory", rel)
			}
			break
		}
		if !os.IsNotExist(err) {
			return "", "", errors.Wrapf(err, "could not resolve '%s'", rel)
		}
		parent := filepath.Dir(probe)
		if parent == probe {
			break
		}
		probe = parent
	}
	return rel, abs, nil
}

func (w *Workspace) contains(resolved string) bool {
	r, err := filepath.Rel(w.root, resolved)
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

// CheckRead rejects hidden paths.
func (w *Workspace) CheckRead(rel string) error {
	if w.Hidden(rel) {
		return errors.New("access denied: path '%s' is hidden", rel)
	}
	return nil
}

// CheckWrite rejects hidden and read-only paths.
func (w *Workspace) CheckWrite(rel string) error {
	if err := w.CheckRead(rel); err != nil {
		return err
	}
	if matchAny(w.access.ReadOnly, rel) {
		return errors.New("access denied: path '%s' is read-only", rel)
	}
	return nil
}

func (w *Workspace) Hidden(rel string) bool {
	return matchAny(w.access.Hidden, rel)
}

// Ignored reports whether a directory is skipped by listings and searches.
func (w *Workspace) Ignored(relDir string) bool {
	if matchAny(w.ignoreDirs, relDir) {
		return true
	}
	// "vendor/**" also names the directory itself.
	return matchAny(w.ignoreDirs, relDir+"/")
}

func matchAny(patterns []string, rel string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}
