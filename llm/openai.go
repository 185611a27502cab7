package llm

import (
	"context"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient talks to the OpenAI Chat Completion API or any server
// speaking the same protocol.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a client. baseURL may be empty for the public API.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{Key: "api_key", Reason: "OPENAI_API_KEY environment variable not set"}
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK returns the client by value.
	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c}, nil
}

func (o *OpenAIClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    convertMessagesToOpenAI(req.Messages),
		Temperature: openai.Float(req.Temperature),
		Tools:       convertToolsToOpenAI(req.Tools),
	}
	switch req.ToolChoice.Mode {
	case ToolChoiceAuto:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(ToolChoiceAuto)}
	case ToolChoiceFunction:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.Function},
			},
		}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}
	return &ChatResponse{Message: processOpenAIResponse(resp), Raw: resp}, nil
}

// processOpenAIResponse converts the first choice into an assistant message.
func processOpenAIResponse(resp *openai.ChatCompletion) session.Message {
	if len(resp.Choices) == 0 {
		return session.NewAssistantMessage("", nil)
	}
	choice := resp.Choices[0].Message

	var calls []session.ToolCall
	for _, tc := range choice.ToolCalls {
		calls = append(calls, session.ToolCall{
			ID:           ensureID(tc.ID),
			Name:         tc.Function.Name,
			RawArguments: tc.Function.Arguments,
		})
	}
	return session.NewAssistantMessage(choice.Content, calls)
}

func convertMessagesToOpenAI(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case session.RoleAssistant:
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: string(rawArguments(tc)),
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case session.RoleTool:
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

func convertToolsToOpenAI(defs []tools.Definition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, def := range defs {
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        def.Function.Name,
			Description: openai.String(def.Function.Description),
			Parameters:  openai.FunctionParameters(def.Function.Parameters),
		}))
	}
	return openAITools
}
