package agent

import (
	"context"
	"testing"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/llm"
	"github.com/m4xw311/mallard/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow(t *testing.T) {
	c1 := call("c1", "read_file", "{}")
	c2 := call("c2", "git_status", "{}")
	u1 := session.NewUserMessage("one")
	a1 := session.NewAssistantMessage("", []session.ToolCall{c1})
	t1 := session.NewToolMessage(c1, "r1")
	a2 := session.NewAssistantMessage("text", []session.ToolCall{c2})
	u2 := session.NewUserMessage("two")
	all := []session.Message{u1, a1, t1, a2, u2}

	tests := []struct {
		name  string
		in    []session.Message
		limit int
		want  []session.Message
	}{
		{name: "unlimited", in: all[:3], limit: 0, want: all[:3]},
		{name: "under limit", in: all[:3], limit: 10, want: all[:3]},
		{name: "keeps most recent", in: []session.Message{u1, u2}, limit: 1, want: []session.Message{u2}},
		{name: "drops orphaned result", in: all[:3], limit: 1, want: nil},
		{name: "call and result kept together", in: all[:3], limit: 2, want: []session.Message{a1, t1}},
		{
			name:  "unanswered call is stripped but text kept",
			in:    all,
			limit: 2,
			want:  []session.Message{{Role: session.RoleAssistant, Content: "text"}, u2},
		},
		{name: "empty", in: nil, limit: 3, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertMessages(t, tt.want, Window(tt.in, tt.limit))
		})
	}
}

func TestWindowDoesNotModifyInput(t *testing.T) {
	c1 := call("c1", "read_file", "{}")
	in := []session.Message{session.NewAssistantMessage("x", []session.ToolCall{c1})}
	_ = Window(in, 0)
	assert.Len(t, in[0].ToolCalls, 1)
}

func TestRefineToolCall(t *testing.T) {
	f := newFixture(t, Options{HistoryLimit: 2},
		llm.Calls("", call("other", "read_file", `{"filename":"b.go"}`)),
	)
	original := session.ToolCall{ID: "c1", Name: "read_file", Arguments: map[string]any{"filename": "a.go"}}
	current := []session.Message{
		session.NewSystemMessage("system prompt"),
		session.NewUserMessage("old"),
		session.NewUserMessage("read a file"),
	}

	refined, err := f.agent.RefineToolCall(context.Background(), original, "use b.go instead", current)
	require.NoError(t, err)
	assert.Equal(t, "c1", refined.ID)
	assert.Equal(t, "read_file", refined.Name)
	assert.Equal(t, map[string]any{"filename": "b.go"}, refined.Arguments)

	req := f.client.Requests()[0]
	assert.Equal(t, llm.ToolChoice{Mode: llm.ToolChoiceFunction, Function: "read_file"}, req.ToolChoice)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "old", req.Messages[0].Content)
	last := req.Messages[2]
	assert.Equal(t, session.RoleSystem, last.Role)
	assert.Contains(t, last.Content, `{"filename":"a.go"}`)
	assert.Contains(t, last.Content, "'use b.go instead'")

	stored, err := f.history.All()
	require.NoError(t, err)
	assert.Empty(t, stored, "refinement never touches the history")
}

func TestRefineToolCallFailures(t *testing.T) {
	original := call("c1", "read_file", `{"filename":"a.go"}`)
	tests := []struct {
		name     string
		response llm.ScriptedResponse
	}{
		{"backend error", llm.Fail(errors.New("timeout"))},
		{"text instead of call", llm.Text("I would rather not.")},
		{"different tool", llm.Calls("", call("x", "git_status", "{}"))},
		{"bad json", llm.Calls("", call("x", "read_file", `{"filename":`))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{}, tt.response)
			refined, err := f.agent.RefineToolCall(context.Background(), original, "again", nil)
			assert.Error(t, err)
			assert.Nil(t, refined)
		})
	}
}
