package agent

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/tools"
)

//go:embed prompts/system_prompt.txt
var defaultSystemPrompt string

const (
	toolsListPlaceholder  = "%tools_list%"
	toolsShotsPlaceholder = "%tools_shots%"
)

// SystemPrompt fills the tool placeholders of template with the given tools.
func SystemPrompt(template string, ts []tools.Tool) string {
	var list, shots []string
	for _, t := range ts {
		list = append(list, fmt.Sprintf("*   `%s`: %s.", t.Name(), strings.TrimSuffix(t.Description(), ".")))
		if examples := t.FewShotExamples(); examples != "" {
			shots = append(shots, fmt.Sprintf("Tool: %s\nExamples:\n%s\n", t.Name(), examples))
		}
	}
	out := strings.ReplaceAll(template, toolsListPlaceholder, strings.Join(list, "\n"))
	return strings.ReplaceAll(out, toolsShotsPlaceholder, strings.Join(shots, "\n"))
}

// LoadSystemPrompt renders the template at path, or the built-in one when
// path is empty.
func LoadSystemPrompt(path string, ts []tools.Tool) (string, error) {
	template := defaultSystemPrompt
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", errors.Wrapf(err, "system prompt template file not found: %s", path)
		}
		template = string(data)
	}
	return SystemPrompt(template, ts), nil
}
