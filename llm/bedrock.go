package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockClient is a client for the Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client *bedrockruntime.Client
}

// NewBedrockClient creates a client from the default AWS credential chain.
// BEDROCK_ENDPOINT_URL overrides the service endpoint.
func NewBedrockClient(ctx context.Context) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = firstNonEmpty(os.Getenv("AWS_DEFAULT_REGION"), os.Getenv("AWS_REGION"), "us-east-1")
	}

	endpoint := os.Getenv("BEDROCK_ENDPOINT_URL")
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &BedrockClient{client: client}, nil
}

func (b *BedrockClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := createAnthropicRequest(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	msg, err := processBedrockResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Message: msg, Raw: json.RawMessage(resp.Body)}, nil
}

// convertMessagesToAnthropicFormat builds the raw Messages API payload.
// Consecutive tool results share one user turn.
func convertMessagesToAnthropicFormat(messages []session.Message) []map[string]any {
	var out []map[string]any
	prevTool := false
	for _, msg := range messages {
		isTool := msg.Role == session.RoleTool
		switch msg.Role {
		case session.RoleSystem:
			continue
		case session.RoleAssistant:
			var content []map[string]any
			if msg.HasText() {
				content = append(content, map[string]any{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": rawArguments(tc),
				})
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, map[string]any{"role": "assistant", "content": content})
		case session.RoleTool:
			result := map[string]any{
				"type":        "tool_result",
				"tool_use_id": msg.ToolCallID,
				"content":     msg.Content,
			}
			if prevTool {
				last := out[len(out)-1]
				last["content"] = append(last["content"].([]map[string]any), result)
			} else {
				out = append(out, map[string]any{"role": "user", "content": []map[string]any{result}})
			}
		default:
			out = append(out, map[string]any{
				"role":    "user",
				"content": []map[string]any{{"type": "text", "text": msg.Content}},
			})
		}
		prevTool = isTool
	}
	return out
}

// createAnthropicRequest creates the request body for Anthropic models on Bedrock.
func createAnthropicRequest(req ChatRequest) ([]byte, error) {
	request := map[string]any{
		"anthropic_version": bedrockAnthropicVersion,
		"max_tokens":        anthropicMaxTokens,
		"temperature":       req.Temperature,
		"messages":          convertMessagesToAnthropicFormat(req.Messages),
	}
	if system := systemPrompt(req.Messages); system != "" {
		request["system"] = system
	}

	if len(req.Tools) > 0 {
		var defs []map[string]any
		for _, def := range req.Tools {
			schema := def.Function.Parameters
			if schema == nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			defs = append(defs, map[string]any{
				"name":         def.Function.Name,
				"description":  def.Function.Description,
				"input_schema": schema,
			})
		}
		request["tools"] = defs
	}
	switch req.ToolChoice.Mode {
	case ToolChoiceAuto:
		request["tool_choice"] = map[string]any{"type": "auto"}
	case ToolChoiceFunction:
		request["tool_choice"] = map[string]any{"type": "tool", "name": req.ToolChoice.Function}
	}

	return json.Marshal(request)
}

type bedrockResponse struct {
	Error   any `json:"error"`
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
}

// processBedrockResponse converts a Bedrock response body into an assistant message.
func processBedrockResponse(body []byte) (session.Message, error) {
	var response bedrockResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return session.Message{}, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return session.Message{}, errors.New("Bedrock API error: %v", response.Error)
	}

	var text string
	var calls []session.ToolCall
	for _, item := range response.Content {
		switch item.Type {
		case "text":
			text += item.Text
		case "tool_use":
			raw := string(item.Input)
			if raw == "" || raw == "null" {
				raw = "{}"
			}
			calls = append(calls, session.ToolCall{ID: ensureID(item.ID), Name: item.Name, RawArguments: raw})
		}
	}
	return session.NewAssistantMessage(text, calls), nil
}
