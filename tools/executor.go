package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m4xw311/mallard/session"
	"go.uber.org/zap"
)

// Executor runs one resolved tool call and always yields a result object.
// It never retries.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute looks up call.Name and invokes the tool with the decoded
// arguments. Errors and panics raised by the tool come back as a result with
// status "error".
func (e *Executor) Execute(ctx context.Context, call session.ToolCall) (result string) {
	t, ok := e.registry.Get(call.Name)
	if !ok {
		return Failure("tool not found: '%s'", call.Name).String()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", zap.String("tool", call.Name), zap.Any("panic", r))
			result = Failure("tool '%s' failed unexpectedly: %v", call.Name, r).String()
		}
	}()

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	out, err := t.Execute(ctx, args)
	if err != nil {
		e.logger.Error("tool execution failed", zap.String("tool", call.Name), zap.Error(err))
		return Failure("%s", err.Error()).String()
	}
	return normalize(out)
}

// normalize passes JSON objects through and wraps anything else (plain text
// from MCP servers) in a success result.
func normalize(out string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(out), &obj); err == nil && obj != nil {
		if _, hasStatus := obj["status"]; hasStatus {
			return out
		}
		return Success(fmt.Sprintf("%d field(s) returned.", len(obj))).With("output", obj).String()
	}
	return Success("Tool completed.").With("output", out).String()
}
