package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
)

const anthropicMaxTokens = 4096

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a client. baseURL may be empty.
func NewAnthropicClient(apiKey, baseURL string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{Key: "api_key", Reason: "ANTHROPIC_API_KEY environment variable not set"}
	}
	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(options...)
	return &AnthropicClient{client: &client}, nil
}

func (a *AnthropicClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   anthropicMaxTokens,
		Messages:    convertMessagesToAnthropic(req.Messages),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := systemPrompt(req.Messages); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, toolParam := range convertToolsToAnthropic(req.Tools) {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	switch req.ToolChoice.Mode {
	case ToolChoiceAuto:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	case ToolChoiceFunction:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice.Function}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}
	return &ChatResponse{Message: processAnthropicResponse(resp), Raw: resp}, nil
}

// convertMessagesToAnthropic maps the conversation onto user/assistant
// turns. System messages travel separately. Consecutive tool results are
// folded into one user turn because the API expects every result of a
// tool_use turn in the message right after it.
func convertMessagesToAnthropic(messages []session.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	prevTool := false
	for _, msg := range messages {
		isTool := msg.Role == session.RoleTool
		switch msg.Role {
		case session.RoleSystem:
			continue
		case session.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.HasText() {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						ID:    tc.ID,
						Name:  tc.Name,
						Input: rawArguments(tc),
					}})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant, Content: blocks})
		case session.RoleTool:
			block := anthropic.ContentBlockParamUnion{
				OfToolResult: &anthropic.ToolResultBlockParam{
					ToolUseID: msg.ToolCallID,
					Content: []anthropic.ToolResultBlockParamContentUnion{{
						OfText: &anthropic.TextBlockParam{Text: msg.Content},
					}},
				},
			}
			if prevTool {
				last := &out[len(out)-1]
				last.Content = append(last.Content, block)
			} else {
				out = append(out, anthropic.MessageParam{Role: anthropic.MessageParamRoleUser, Content: []anthropic.ContentBlockParamUnion{block}})
			}
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
		prevTool = isTool
	}
	return out
}

func convertToolsToAnthropic(defs []tools.Definition) []anthropic.ToolParam {
	var anthropicTools []anthropic.ToolParam
	for _, def := range defs {
		properties := def.Function.Parameters["properties"]
		if properties == nil {
			properties = map[string]any{}
		}
		anthropicTools = append(anthropicTools, anthropic.ToolParam{
			Name:        def.Function.Name,
			Description: anthropic.String(def.Function.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
			},
		})
	}
	return anthropicTools
}

func processAnthropicResponse(resp *anthropic.Message) session.Message {
	var text string
	var calls []session.ToolCall
	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			text += c.Text
		case anthropic.ToolUseBlock:
			calls = append(calls, session.ToolCall{
				ID:           ensureID(c.ID),
				Name:         c.Name,
				RawArguments: string(c.Input),
			})
		}
	}
	return session.NewAssistantMessage(text, calls)
}
