package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// Result statuses understood by the conversation loop and the terminal.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusWarning       = "warning"
	StatusDeclined      = "user_declined"
	StatusInternalError = "internal_error"
)

// Result is the JSON object every tool call resolves to. It always carries
// "status" and "message"; other keys are passed to the model unchanged.
type Result map[string]any

func NewResult(status, message string) Result {
	return Result{"status": status, "message": message}
}

func Success(message string) Result { return NewResult(StatusSuccess, message) }

func Failure(format string, args ...any) Result {
	return NewResult(StatusError, fmt.Sprintf(format, args...))
}

// With sets key and returns r for chaining.
func (r Result) With(key string, value any) Result {
	r[key] = value
	return r
}

func (r Result) String() string {
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		fallback, _ := json.Marshal(map[string]string{
			"status":  StatusInternalError,
			"message": "failed to encode tool result: " + err.Error(),
		})
		return string(fallback)
	}
	return string(b)
}

// Status extracts the status field of an encoded result, or "" when raw is
// not a result object.
func Status(raw string) string {
	var probe struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return ""
	}
	return probe.Status
}

func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok
}

func boolArg(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		switch v {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return def
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

func object(required []string, props map[string]any) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}
