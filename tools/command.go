package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ExecuteCommandTool implements the tool for running OS commands.
type ExecuteCommandTool struct {
	runner          *ShellRunner
	allowedCommands []string
	logger          *zap.Logger
}

func (t *ExecuteCommandTool) Name() string { return "execute_command" }
func (t *ExecuteCommandTool) Description() string {
	if len(t.allowedCommands) == 0 {
		return "Executes a command in the project directory. No commands are currently allowed."
	}

	allowedList := "Allowed command patterns (regular expressions):\n"
	for _, cmd := range t.allowedCommands {
		allowedList += fmt.Sprintf("- %s\n", cmd)
	}

	return fmt.Sprintf("Executes a command in the project directory without a shell.\n%s", allowedList)
}
func (t *ExecuteCommandTool) Parameters() map[string]any {
	return object([]string{"command"}, map[string]any{
		"command": prop("string", `The full command line, e.g. "go test ./...".`),
	})
}
func (t *ExecuteCommandTool) RequiresConfirmation() bool { return true }
func (t *ExecuteCommandTool) FewShotExamples() string {
	return "Run the test suite.\nRun 'go vet ./...'."
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return Failure("missing or invalid 'command' argument").String(), nil
	}
	if !t.isCommandAllowed(command) {
		return Failure("command '%s' is not in the list of allowed commands", command).String(), nil
	}

	parts := strings.Fields(command)
	res, err := t.runner.Run(ctx, parts[0], parts[1:], "")
	if err != nil {
		return Failure("%v", err).String(), nil
	}
	return outcome(res, "Command executed successfully.", "Command failed"), nil
}

// isCommandAllowed checks the command line against the allowlist. Patterns
// are anchored regular expressions; a pattern that does not compile only
// matches the identical command line.
func (t *ExecuteCommandTool) isCommandAllowed(command string) bool {
	for _, pattern := range t.allowedCommands {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("invalid regex in allowed_commands", zap.String("pattern", pattern), zap.Error(err))
			}
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
