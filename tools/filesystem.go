package tools

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/m4xw311/mallard/diff"
)

// MaxReadChars bounds the content read_file hands to the model.
const MaxReadChars = 50000

// DiffPreviewer is implemented by tools that can show what they would change
// before the user approves them.
type DiffPreviewer interface {
	PreviewDiff(args map[string]any) ([]diff.Hunk, error)
}

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct {
	ws *Workspace
}

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the content of a file. Paths are relative to the project directory and use forward slashes (e.g. internal/server/server.go). Content longer than 50000 characters is truncated."
}
func (t *ReadFileTool) Parameters() map[string]any {
	return object([]string{"filename"}, map[string]any{
		"filename": prop("string", `Relative path of the file to read (e.g. "README.md", "cmd/app/main.go").`),
	})
}
func (t *ReadFileTool) RequiresConfirmation() bool { return false }
func (t *ReadFileTool) FewShotExamples() string {
	return strings.Join([]string{
		"Show me what's in 'go.mod'.",
		"Read the file 'internal/config/config.go'.",
		"What does the README say?",
	}, "\n")
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	filename, _ := stringArg(args, "filename")
	if strings.TrimSpace(filename) == "" {
		return Failure("Filename is required and cannot be empty.").String(), nil
	}
	rel, abs, err := t.ws.Resolve(filename)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	if err := t.ws.CheckRead(rel); err != nil {
		return Failure("%v", err).String(), nil
	}

	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return Failure("File '%s' not found.", rel).String(), nil
	}
	if err != nil {
		return Failure("File '%s' is not accessible: %v", rel, err).String(), nil
	}
	if info.IsDir() {
		return Failure("'%s' is not a file.", rel).String(), nil
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return Failure("Failed to read content from file '%s': %v", rel, err).String(), nil
	}
	content, truncated := truncateChars(string(raw), MaxReadChars)
	msg := "File '" + rel + "' content retrieved successfully."
	if truncated {
		msg = "File '" + rel + "' content retrieved and truncated to 50000 characters."
	}
	return Success(msg).
		With("filename", rel).
		With("content", content).
		With("truncated", truncated).
		String(), nil
}

func truncateChars(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// CreateFileTool writes a new file and refuses to overwrite an existing one.
type CreateFileTool struct {
	ws *Workspace
}

func (t *CreateFileTool) Name() string { return "create_file" }
func (t *CreateFileTool) Description() string {
	return "Creates a new file with the given content. Paths are relative to the project directory and use forward slashes. Fails if the file already exists; use rewrite_file to change existing files."
}
func (t *CreateFileTool) Parameters() map[string]any {
	return object([]string{"filename", "content"}, map[string]any{
		"filename": prop("string", `Relative path of the file to create (e.g. "docs/usage.md").`),
		"content":  prop("string", "The content to write into the new file."),
	})
}
func (t *CreateFileTool) RequiresConfirmation() bool { return true }
func (t *CreateFileTool) FewShotExamples() string {
	return strings.Join([]string{
		"Create a file 'docs/notes.md' with a short project summary.",
		"Add a new test file 'internal/parser/parser_test.go'.",
	}, "\n")
}

func (t *CreateFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	filename, _ := stringArg(args, "filename")
	content, _ := stringArg(args, "content")
	if strings.TrimSpace(filename) == "" {
		return Failure("Filename is required and cannot be empty.").String(), nil
	}
	rel, abs, err := t.ws.Resolve(filename)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	if rel == "." {
		return Failure("Filename became empty after sanitization or was invalid.").String(), nil
	}
	if err := t.ws.CheckWrite(rel); err != nil {
		return Failure("%v", err).String(), nil
	}

	if info, err := os.Stat(abs); err == nil {
		if info.IsDir() {
			return Failure("Cannot create file. A directory already exists at '%s'.", rel).String(), nil
		}
		return Failure("File '%s' already exists.", rel).String(), nil
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Failure("Failed to create directory for '%s': %v", rel, err).String(), nil
	}
	// O_EXCL closes the window between the existence check and the write.
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Failure("Failed to create file '%s': %v", rel, err).String(), nil
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return Failure("Failed to write to file '%s': %v", rel, err).String(), nil
	}
	return Success("File '"+rel+"' created successfully.").String(), nil
}

// RewriteFileTool replaces the content of an existing file.
type RewriteFileTool struct {
	ws *Workspace
}

func (t *RewriteFileTool) Name() string { return "rewrite_file" }
func (t *RewriteFileTool) Description() string {
	return "Rewrites the full content of an existing file. Paths are relative to the project directory and use forward slashes. The file must exist; use create_file for new files."
}
func (t *RewriteFileTool) Parameters() map[string]any {
	return object([]string{"filename", "content"}, map[string]any{
		"filename": prop("string", `Relative path of the file to rewrite (e.g. "internal/server/server.go").`),
		"content":  prop("string", "The complete new content of the file."),
	})
}
func (t *RewriteFileTool) RequiresConfirmation() bool { return true }
func (t *RewriteFileTool) FewShotExamples() string {
	return strings.Join([]string{
		"Fix the typo in the README heading.",
		"Rename the function 'parse' to 'parseLine' in 'internal/parser/parser.go'.",
	}, "\n")
}

func (t *RewriteFileTool) target(args map[string]any) (rel, abs, content string, failure string) {
	filename, _ := stringArg(args, "filename")
	content, _ = stringArg(args, "content")
	if strings.TrimSpace(filename) == "" {
		return "", "", "", "Filename is required and cannot be empty."
	}
	rel, abs, err := t.ws.Resolve(filename)
	if err != nil {
		return "", "", "", err.Error()
	}
	if err := t.ws.CheckWrite(rel); err != nil {
		return "", "", "", err.Error()
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", "", "File '" + rel + "' not found. Use 'create_file' to create new files."
	}
	if info.IsDir() {
		return "", "", "", "Cannot rewrite file. A directory exists at '" + rel + "'."
	}
	return rel, abs, content, ""
}

// PreviewDiff returns the hunks the rewrite would apply.
func (t *RewriteFileTool) PreviewDiff(args map[string]any) ([]diff.Hunk, error) {
	_, abs, content, failure := t.target(args)
	if failure != "" {
		return nil, nil
	}
	return diff.File(abs, content)
}

func (t *RewriteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rel, abs, content, failure := t.target(args)
	if failure != "" {
		return Failure("%s", failure).String(), nil
	}
	hunks, err := diff.File(abs, content)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	if len(hunks) == 0 {
		return Success("File '"+rel+"' already has this content; nothing changed.").String(), nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Failure("File '%s' is not accessible: %v", rel, err).String(), nil
	}
	if err := os.WriteFile(abs, []byte(content), info.Mode().Perm()); err != nil {
		return Failure("Failed to write to file '%s': %v", rel, err).String(), nil
	}
	return Success("File '"+rel+"' rewritten successfully.").
		With("changed_hunks", len(hunks)).
		String(), nil
}

// DeleteFileTool removes a single file; directories are refused.
type DeleteFileTool struct {
	ws *Workspace
}

func (t *DeleteFileTool) Name() string { return "delete_file" }
func (t *DeleteFileTool) Description() string {
	return "Deletes a file. Paths are relative to the project directory and use forward slashes. Directories cannot be deleted with this tool."
}
func (t *DeleteFileTool) Parameters() map[string]any {
	return object([]string{"filename"}, map[string]any{
		"filename": prop("string", `Relative path of the file to delete (e.g. "tmp/output.log").`),
	})
}
func (t *DeleteFileTool) RequiresConfirmation() bool { return true }
func (t *DeleteFileTool) FewShotExamples() string {
	return strings.Join([]string{
		"Remove the file 'scratch.txt'.",
		"Delete the obsolete 'internal/legacy/legacy.go'.",
	}, "\n")
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	filename, _ := stringArg(args, "filename")
	if strings.TrimSpace(filename) == "" {
		return Failure("Filename is required and cannot be empty.").String(), nil
	}
	rel, abs, err := t.ws.Resolve(filename)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	if err := t.ws.CheckWrite(rel); err != nil {
		return Failure("%v", err).String(), nil
	}
	info, err := os.Lstat(abs)
	if os.IsNotExist(err) {
		return Failure("File '%s' not found.", rel).String(), nil
	}
	if err != nil {
		return Failure("File '%s' is not accessible: %v", rel, err).String(), nil
	}
	if info.IsDir() {
		return Failure("'%s' is not a file. Cannot delete directories with this tool.", rel).String(), nil
	}
	if err := os.Remove(abs); err != nil {
		return Failure("Failed to delete file '%s': %v", rel, err).String(), nil
	}
	return Success("File '" + rel + "' deleted successfully.").String(), nil
}

// ListDirectoryTool lists the entries of a directory, optionally recursively.
type ListDirectoryTool struct {
	ws *Workspace
}

type dirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t *ListDirectoryTool) Name() string { return "list_directory" }
func (t *ListDirectoryTool) Description() string {
	return `Lists the contents of a directory. Paths are relative to the project directory and use forward slashes; "." is the project root. Can filter files or directories and list recursively.`
}
func (t *ListDirectoryTool) Parameters() map[string]any {
	return object(nil, map[string]any{
		"path":          prop("string", `Relative directory to list. Defaults to ".".`),
		"recursive":     prop("boolean", "List subdirectories recursively. Defaults to false."),
		"include_files": prop("boolean", "Include files. Defaults to true."),
		"include_dirs":  prop("boolean", "Include directories. Defaults to true."),
	})
}
func (t *ListDirectoryTool) RequiresConfirmation() bool { return false }
func (t *ListDirectoryTool) FewShotExamples() string {
	return strings.Join([]string{
		"What's in the project root?",
		"Show every file under 'internal', including subdirectories.",
		"List only the folders inside 'cmd'.",
	}, "\n")
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	input, _ := stringArg(args, "path")
	recursive := boolArg(args, "recursive", false)
	includeFiles := boolArg(args, "include_files", true)
	includeDirs := boolArg(args, "include_dirs", true)

	if !includeFiles && !includeDirs {
		return NewResult(StatusWarning, "Nothing to list: both include_files and include_dirs are set to false.").
			With("path", input).
			With("entries", []dirEntry{}).
			String(), nil
	}
	rel, abs, err := t.ws.Resolve(input)
	if err != nil {
		return Failure("Invalid path '%s': %v", input, err).String(), nil
	}
	if err := t.ws.CheckRead(rel); err != nil {
		return Failure("%v", err).String(), nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Failure("Directory '%s' not found or is inaccessible.", rel).String(), nil
	}
	if !info.IsDir() {
		return Failure("'%s' is not a directory.", rel).String(), nil
	}

	entries := []dirEntry{}
	err = walk(ctx, t.ws, rel, recursive, func(entryRel string, isDir bool) {
		if (isDir && includeDirs) || (!isDir && includeFiles) {
			typ := "file"
			if isDir {
				typ = "directory"
			}
			entries = append(entries, dirEntry{Name: entryRel, Type: typ})
		}
	})
	if err != nil {
		return Failure("Error listing directory '%s': %v", rel, err).String(), nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Type != entries[j].Type {
			return entries[i].Type == "directory"
		}
		return entries[i].Name < entries[j].Name
	})

	return Success("Directory '"+rel+"' listed successfully.").
		With("path", rel).
		With("recursive", recursive).
		With("include_files", includeFiles).
		With("include_dirs", includeDirs).
		With("entries", entries).
		String(), nil
}

// walk visits the entries below relDir using an explicit stack. Hidden
// entries are never visited; ignored directories are neither reported nor
// descended into. Symlinks are reported as files and not followed.
func walk(ctx context.Context, ws *Workspace, relDir string, recursive bool, visit func(rel string, isDir bool)) error {
	stack := []string{relDir}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		items, err := os.ReadDir(filepath.Join(ws.Root(), filepath.FromSlash(dir)))
		if err != nil {
			if dir == relDir {
				return err
			}
			continue
		}
		for i := len(items) - 1; i >= 0; i-- {
			item := items[i]
			rel := item.Name()
			if dir != "." {
				rel = dir + "/" + item.Name()
			}
			if ws.Hidden(rel) {
				continue
			}
			isDir := item.IsDir()
			if isDir && ws.Ignored(rel) {
				continue
			}
			visit(rel, isDir)
			if isDir && recursive {
				stack = append(stack, rel)
			}
		}
	}
	return nil
}
