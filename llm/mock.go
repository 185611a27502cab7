package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
)

// MockClient parrots the last user message and never calls tools. It backs
// the "mock" llm setting for trying the CLI without credentials.
type MockClient struct{}

func (m *MockClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == session.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	text := fmt.Sprintf("I am a mock LLM. You said: '%s'. %d tools are available.", last, len(req.Tools))
	return &ChatResponse{Message: session.NewAssistantMessage(text, nil)}, nil
}

// ScriptedResponse is one canned backend answer. A non-nil Err is returned
// instead of the message.
type ScriptedResponse struct {
	Message session.Message
	Err     error
}

// Text is a final answer without tool calls.
func Text(content string) ScriptedResponse {
	return ScriptedResponse{Message: session.NewAssistantMessage(content, nil)}
}

// Calls is an answer raising the given tool calls.
func Calls(content string, calls ...session.ToolCall) ScriptedResponse {
	return ScriptedResponse{Message: session.NewAssistantMessage(content, calls)}
}

func Fail(err error) ScriptedResponse {
	return ScriptedResponse{Err: err}
}

// ScriptedClient replays responses in order and records every request.
type ScriptedClient struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	requests  []ChatRequest
}

func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{responses: responses}
}

func (c *ScriptedClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recorded := req
	recorded.Messages = append([]session.Message(nil), req.Messages...)
	c.requests = append(c.requests, recorded)

	if len(c.responses) == 0 {
		return nil, errors.New("no scripted response left for request %d", len(c.requests))
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return &ChatResponse{Message: next.Message, Raw: next}, nil
}

// Requests returns the requests received so far.
func (c *ScriptedClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ChatRequest(nil), c.requests...)
}
