package llm

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
)

// Client is the interface for interacting with a Large Language Model.
// Implementations never retry; a failed call is returned to the caller.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*BedrockClient)(nil)
	_ Client = (*GeminiClient)(nil)
	_ Client = (*ScriptedClient)(nil)
)

const (
	ToolChoiceAuto     = "auto"
	ToolChoiceFunction = "function"
)

// ToolChoice tells the backend whether it may pick a tool freely or must
// call Function. The zero value leaves the backend default in place.
type ToolChoice struct {
	Mode     string
	Function string
}

type ChatRequest struct {
	Model       string
	Messages    []session.Message
	Temperature float64
	Tools       []tools.Definition
	ToolChoice  ToolChoice
}

// ChatResponse carries the assistant message. Tool calls hold the backend's
// argument string in RawArguments; decoding is left to the caller.
type ChatResponse struct {
	Message session.Message
	Raw     any
}

// New builds the client named by cfg.LLMClient.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.LLMClient {
	case "", "openai":
		return NewOpenAIClient(firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY")), firstNonEmpty(cfg.APIBase, os.Getenv("OPENAI_BASE_URL")))
	case "anthropic":
		return NewAnthropicClient(firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY")), cfg.APIBase)
	case "bedrock":
		return NewBedrockClient(ctx)
	case "gemini":
		return NewGeminiClient(ctx, firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY")))
	case "mock":
		return &MockClient{}, nil
	default:
		return nil, &errors.ConfigError{Key: "llm", Reason: "unknown client '" + cfg.LLMClient + "'"}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// systemPrompt joins the system messages; backends that take the system
// prompt out of band use it and skip those messages.
func systemPrompt(messages []session.Message) string {
	var parts []string
	for _, msg := range messages {
		if msg.Role == session.RoleSystem && msg.Content != "" {
			parts = append(parts, msg.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// rawArguments returns the argument string to replay for tc, never empty.
func rawArguments(tc session.ToolCall) json.RawMessage {
	raw := tc.ArgumentsJSON()
	if !json.Valid([]byte(raw)) {
		b, _ := json.Marshal(map[string]any{"raw_arguments": raw})
		return b
	}
	return json.RawMessage(raw)
}

func ensureID(id string) string {
	if id == "" {
		return "call_" + uuid.NewString()
	}
	return id
}
