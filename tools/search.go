package tools

import (
	"bufio"
	"context"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// maxSearchResults caps the matches returned by one search.
const maxSearchResults = 200

var slashRegex = regexp.MustCompile(`^/(.+)/([a-zA-Z]*)$`)

// FindTextInFilesTool searches project files for a literal string or a
// /regex/flags pattern.
type FindTextInFilesTool struct {
	ws *Workspace
}

type searchMatch struct {
	Filename      string   `json:"filename"`
	LineNumber    int      `json:"line_number"`
	LineContent   string   `json:"line_content"`
	ContextBefore []string `json:"context_before,omitempty"`
	ContextAfter  []string `json:"context_after,omitempty"`
	Matches       []string `json:"matches,omitempty"`
}

func (t *FindTextInFilesTool) Name() string { return "find_text_in_files" }
func (t *FindTextInFilesTool) Description() string {
	return "Searches project files for a text pattern or regular expression and returns the matching lines, optionally with surrounding context."
}
func (t *FindTextInFilesTool) Parameters() map[string]any {
	contextLines := prop("integer", "Lines of context to include before and after each match. Defaults to 0.")
	contextLines["minimum"] = 0
	return object([]string{"pattern"}, map[string]any{
		"pattern":       prop("string", `Literal text, or a regular expression written as "/pattern/flags" (flags: i, m, s).`),
		"path":          prop("string", `Relative directory or file to search. Defaults to ".".`),
		"file_mask":     prop("string", `Glob restricting the searched files (e.g. "*.go", "internal/**/*_test.go"). Defaults to all files.`),
		"recursive":     prop("boolean", "Search subdirectories. Defaults to true."),
		"ignore_case":   prop("boolean", "Case-insensitive search. Defaults to false."),
		"context_lines": contextLines,
	})
}
func (t *FindTextInFilesTool) RequiresConfirmation() bool { return false }
func (t *FindTextInFilesTool) FewShotExamples() string {
	return strings.Join([]string{
		"Find every TODO in Go files.",
		"Where is 'NewServer' defined? Look in 'internal'.",
		`Search for the regex '/^func \(s \*Server\)/m' in all .go files.`,
		"Find 'timeout' in the YAML files, ignoring case, with 2 lines of context.",
	}, "\n")
}

type matcher func(line string) (bool, []string)

func compileMatcher(pattern string, ignoreCase bool) (matcher, error) {
	if m := slashRegex.FindStringSubmatch(pattern); m != nil {
		var flags strings.Builder
		for _, f := range m[2] {
			switch f {
			case 'i', 'm', 's':
				flags.WriteRune(f)
			}
		}
		if ignoreCase && !strings.Contains(flags.String(), "i") {
			flags.WriteRune('i')
		}
		expr := m[1]
		if flags.Len() > 0 {
			expr = "(?" + flags.String() + ")" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return func(line string) (bool, []string) {
			sub := re.FindStringSubmatch(line)
			return sub != nil, sub
		}, nil
	}
	if ignoreCase {
		needle := strings.ToLower(pattern)
		return func(line string) (bool, []string) {
			return strings.Contains(strings.ToLower(line), needle), nil
		}, nil
	}
	return func(line string) (bool, []string) {
		return strings.Contains(line, pattern), nil
	}, nil
}

func (t *FindTextInFilesTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, _ := stringArg(args, "pattern")
	if pattern == "" {
		return Failure("Pattern is required and cannot be empty.").String(), nil
	}
	userPath, ok := stringArg(args, "path")
	if !ok || strings.TrimSpace(userPath) == "" {
		userPath = "."
	}
	fileMask, ok := stringArg(args, "file_mask")
	if !ok || fileMask == "" {
		fileMask = "*"
	}
	recursive := boolArg(args, "recursive", true)
	ignoreCase := boolArg(args, "ignore_case", false)
	contextLines := max(intArg(args, "context_lines", 0), 0)

	match, err := compileMatcher(pattern, ignoreCase)
	if err != nil {
		return Failure("Invalid regex pattern: %s. Error: %v", pattern, err).String(), nil
	}
	if !doublestar.ValidatePattern(fileMask) {
		return Failure("Invalid file mask '%s'.", fileMask).String(), nil
	}

	rel, abs, err := t.ws.Resolve(userPath)
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	if err := t.ws.CheckRead(rel); err != nil {
		return Failure("%v", err).String(), nil
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Failure("Search path '%s' not found within the project.", userPath).String(), nil
	}

	var files []string
	if info.IsDir() {
		err = walk(ctx, t.ws, rel, recursive, func(entryRel string, isDir bool) {
			if !isDir && maskMatches(fileMask, entryRel) {
				files = append(files, entryRel)
			}
		})
		if err != nil {
			return Failure("An unexpected error occurred during search: %v", err).String(), nil
		}
	} else if maskMatches(fileMask, rel) {
		files = []string{rel}
	}

	results := []searchMatch{}
	truncated := false
	for _, file := range files {
		found, err := searchFile(filepath.Join(t.ws.Root(), filepath.FromSlash(file)), file, match, contextLines)
		if err != nil {
			continue
		}
		results = append(results, found...)
		if len(results) >= maxSearchResults {
			results = results[:maxSearchResults]
			truncated = true
			break
		}
	}

	if len(results) == 0 {
		return Success(`No matches found for pattern "`+pattern+`" in path "`+userPath+`" with mask "`+fileMask+`".`).
			With("results", results).
			String(), nil
	}
	r := Success("Found " + strconv.Itoa(len(results)) + " match(es).").With("results", results)
	if truncated {
		r.With("truncated", true)
	}
	return r.String(), nil
}

// maskMatches checks a mask without a slash against the base name only.
func maskMatches(mask, rel string) bool {
	if mask == "*" {
		return true
	}
	target := rel
	if !strings.Contains(mask, "/") {
		target = path.Base(rel)
	}
	ok, err := doublestar.Match(mask, target)
	return err == nil && ok
}

func searchFile(abs, rel string, match matcher, contextLines int) ([]searchMatch, error) {
	f, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	var out []searchMatch
	for i, line := range lines {
		ok, groups := match(line)
		if !ok {
			continue
		}
		m := searchMatch{Filename: rel, LineNumber: i + 1, LineContent: line, Matches: groups}
		if contextLines > 0 {
			m.ContextBefore = append([]string{}, lines[max(0, i-contextLines):i]...)
			m.ContextAfter = append([]string{}, lines[i+1:min(len(lines), i+1+contextLines)]...)
		}
		out = append(out, m)
	}
	return out, nil
}
