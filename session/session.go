package session

import (
	"encoding/json"
	"strings"

	"github.com/m4xw311/mallard/errors"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model. ID is assigned by
// the backend and is echoed back unchanged in the tool message answering it.
//
// RawArguments is the argument string exactly as the backend sent it, which
// keeps key order when the call is replayed. Arguments is the decoded form
// handed to tools; it is not persisted.
type ToolCall struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	RawArguments string         `json:"arguments,omitempty"`
	Arguments    map[string]any `json:"-"`
}

// ArgumentsJSON returns the arguments as a JSON object string.
func (tc ToolCall) ArgumentsJSON() string {
	if tc.Arguments == nil && tc.RawArguments != "" {
		return tc.RawArguments
	}
	args := tc.Arguments
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  string     `json:"timestamp,omitempty"`
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage keeps only the persisted part of each call.
func NewAssistantMessage(content string, calls []ToolCall) Message {
	msg := Message{Role: RoleAssistant, Content: content}
	for _, tc := range calls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, RawArguments: tc.RawArguments})
	}
	return msg
}

// NewToolMessage builds the result message answering call.
func NewToolMessage(call ToolCall, result string) Message {
	return Message{Role: RoleTool, Content: result, ToolCallID: call.ID, Name: call.Name}
}

// Validate checks the role-specific field combinations.
func (m Message) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser:
		if len(m.ToolCalls) > 0 || m.ToolCallID != "" {
			return errors.New("%s message must not carry tool call data", m.Role)
		}
	case RoleAssistant:
		if m.ToolCallID != "" {
			return errors.New("assistant message must not carry a tool_call_id")
		}
	case RoleTool:
		if m.ToolCallID == "" {
			return errors.New("tool message must carry the tool_call_id it answers")
		}
	default:
		return errors.New("unknown message role '%s'", m.Role)
	}
	return nil
}

// HasText reports whether Content is non-blank.
func (m Message) HasText() bool {
	return strings.TrimSpace(m.Content) != ""
}

// ConfirmationState remembers which tools the user allowed for the rest of
// the process. It is never written to disk.
type ConfirmationState struct {
	alwaysAllowed map[string]bool
}

func NewConfirmationState() *ConfirmationState {
	return &ConfirmationState{alwaysAllowed: make(map[string]bool)}
}

func (s *ConfirmationState) AlwaysAllowed(tool string) bool {
	return s.alwaysAllowed[tool]
}

func (s *ConfirmationState) Allow(tool string) {
	s.alwaysAllowed[tool] = true
}
