package session

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/m4xw311/mallard/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	s, err := storage.New(t.TempDir())
	require.NoError(t, err)
	h, err := OpenHistory(s, nil)
	require.NoError(t, err)
	h.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }
	return h
}

func TestToolMessageCarriesCallID(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "read_file", Arguments: map[string]any{"filename": "a.go"}}
	msg := NewToolMessage(call, `{"status":"success","message":"ok"}`)

	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.Equal(t, "read_file", msg.Name)
	assert.NoError(t, msg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"user", NewUserMessage("hi"), false},
		{"assistant with calls", NewAssistantMessage("", []ToolCall{{ID: "1", Name: "x"}}), false},
		{"tool without id", Message{Role: RoleTool, Content: "{}"}, true},
		{"user with id", Message{Role: RoleUser, ToolCallID: "1"}, true},
		{"unknown role", Message{Role: "robot"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAssistantMessageDropsDecodedArguments(t *testing.T) {
	msg := NewAssistantMessage("", []ToolCall{{
		ID: "c1", Name: "git_status", RawArguments: `{"b":1,"a":2}`,
		Arguments: map[string]any{"a": 2.0, "b": 1.0},
	}})

	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"assistant","tool_calls":[{"id":"c1","name":"git_status","arguments":"{\"b\":1,\"a\":2}"}]}`, string(raw))
	assert.Equal(t, `{"b":1,"a":2}`, msg.ToolCalls[0].ArgumentsJSON())
}

func TestArgumentsJSON(t *testing.T) {
	assert.Equal(t, "{}", ToolCall{}.ArgumentsJSON())
	assert.Equal(t, `{"path":"."}`, ToolCall{Arguments: map[string]any{"path": "."}}.ArgumentsJSON())
}

func TestHistoryStampsAndPersists(t *testing.T) {
	h := newTestHistory(t)

	require.NoError(t, h.Add(NewUserMessage("hello")))
	require.NoError(t, h.Add(Message{Role: RoleAssistant, Content: "hi", Timestamp: "2020-01-01T00:00:00Z"}))

	all, err := h.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2025-03-01T10:00:00Z", all[0].Timestamp)
	assert.Equal(t, "2020-01-01T00:00:00Z", all[1].Timestamp)

	raw, err := os.ReadFile(h.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content": "hello"`)
}

func TestHistoryRejectsInvalidMessages(t *testing.T) {
	h := newTestHistory(t)
	assert.Error(t, h.Add(Message{Role: RoleTool, Content: "{}"}))

	all, err := h.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUserInputs(t *testing.T) {
	h := newTestHistory(t)
	require.NoError(t, h.Add(NewUserMessage("first")))
	require.NoError(t, h.Add(NewAssistantMessage("answer", nil)))
	require.NoError(t, h.Add(NewUserMessage("  ")))
	require.NoError(t, h.Add(NewUserMessage("second")))

	inputs, err := h.UserInputs()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, inputs)
}

func TestConfirmationStateIsPerInstance(t *testing.T) {
	s := NewConfirmationState()
	assert.False(t, s.AlwaysAllowed("git_commit"))
	s.Allow("git_commit")
	assert.True(t, s.AlwaysAllowed("git_commit"))

	assert.False(t, NewConfirmationState().AlwaysAllowed("git_commit"))
}
