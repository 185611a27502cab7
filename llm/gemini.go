package llm

import (
	"context"
	"encoding/json"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
	"google.golang.org/api/option"
)

// GeminiClient is a client for the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new GeminiClient.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{Key: "api_key", Reason: "GEMINI_API_KEY environment variable not set"}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiClient{client: client}, nil
}

func (g *GeminiClient) Close() error {
	return g.client.Close()
}

func (g *GeminiClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := g.client.GenerativeModel(req.Model)
	model.SetTemperature(float32(req.Temperature))
	model.Tools = convertToolsToGemini(req.Tools)
	if system := systemPrompt(req.Messages); system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	switch req.ToolChoice.Mode {
	case ToolChoiceAuto:
		model.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingAuto}}
	case ToolChoiceFunction:
		model.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 genai.FunctionCallingAny,
			AllowedFunctionNames: []string{req.ToolChoice.Function},
		}}
	}

	history := convertMessagesToGemini(req.Messages)
	if len(history) == 0 || history[len(history)-1].Role == "model" {
		return nil, errors.New("gemini request must end with a user turn")
	}

	// The last content is the new prompt.
	last := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	msg, err := processGeminiResponse(resp)
	if err != nil {
		return nil, err
	}
	return &ChatResponse{Message: msg, Raw: resp}, nil
}

// convertMessagesToGemini maps the conversation onto user/model contents.
// Tool results become function responses in a user content, one content
// per run of consecutive results.
func convertMessagesToGemini(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	prevTool := false
	for _, msg := range messages {
		isTool := msg.Role == session.RoleTool
		switch msg.Role {
		case session.RoleSystem:
			continue
		case session.RoleAssistant:
			var parts []genai.Part
			if msg.HasText() {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal(rawArguments(tc), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case session.RoleTool:
			part := genai.FunctionResponse{Name: msg.Name, Response: functionResponse(msg.Content)}
			if prevTool {
				last := contents[len(contents)-1]
				last.Parts = append(last.Parts, part)
			} else {
				contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{part}})
			}
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
		prevTool = isTool
	}
	return contents
}

// functionResponse decodes a tool result into the object Gemini expects.
func functionResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	return map[string]any{"output": content}
}

func convertToolsToGemini(defs []tools.Definition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, def := range defs {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  geminiSchema(def.Function.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// geminiSchema converts a JSON schema object into genai's schema type.
// Keywords genai has no field for are dropped.
func geminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{}
	switch schema["type"] {
	case "string":
		out.Type = genai.TypeString
	case "number":
		out.Type = genai.TypeNumber
	case "integer":
		out.Type = genai.TypeInteger
	case "boolean":
		out.Type = genai.TypeBoolean
	case "array":
		out.Type = genai.TypeArray
	default:
		out.Type = genai.TypeObject
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				out.Enum = append(out.Enum, s)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = geminiSchema(items)
	}
	if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = geminiSchema(pm)
			}
		}
	}
	switch required := schema["required"].(type) {
	case []string:
		out.Required = append(out.Required, required...)
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

// processGeminiResponse converts the first candidate into an assistant
// message. Gemini does not assign call ids, so one is generated per call.
func processGeminiResponse(resp *genai.GenerateContentResponse) (session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return session.Message{}, errors.New("received an empty response from Gemini")
	}

	var text string
	var calls []session.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text += string(v)
		case genai.FunctionCall:
			if v.Args == nil {
				v.Args = map[string]any{}
			}
			args, err := json.Marshal(v.Args)
			if err != nil {
				return session.Message{}, errors.Wrapf(err, "failed to encode arguments of '%s'", v.Name)
			}
			calls = append(calls, session.ToolCall{ID: ensureID(""), Name: v.Name, RawArguments: string(args)})
		default:
			return session.Message{}, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}
	return session.NewAssistantMessage(text, calls), nil
}
