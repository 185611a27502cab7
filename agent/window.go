package agent

import (
	"context"
	"fmt"

	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/llm"
	"github.com/m4xw311/mallard/session"
	"go.uber.org/zap"
)

// Window keeps the limit most recent messages (all of them when limit <= 0)
// and drops the pieces the cut left dangling: tool results whose call is
// gone and tool calls whose result is gone. An assistant message left with
// neither text nor calls is dropped too.
func Window(messages []session.Message, limit int) []session.Message {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	asked := make(map[string]bool)
	answered := make(map[string]bool)
	for _, m := range messages {
		for _, tc := range m.ToolCalls {
			asked[tc.ID] = true
		}
		if m.Role == session.RoleTool {
			answered[m.ToolCallID] = true
		}
	}

	out := make([]session.Message, 0, len(messages))
	for _, m := range messages {
		switch {
		case m.Role == session.RoleTool && !asked[m.ToolCallID]:
			continue
		case m.Role == session.RoleAssistant && len(m.ToolCalls) > 0:
			var kept []session.ToolCall
			for _, tc := range m.ToolCalls {
				if answered[tc.ID] {
					kept = append(kept, tc)
				}
			}
			if len(kept) == 0 && !m.HasText() {
				continue
			}
			m.ToolCalls = kept
		}
		out = append(out, m)
	}
	return out
}

// RefineToolCall asks the backend to call the same tool again with
// arguments reworked according to prompt. current is the context the
// original call was raised in. Nothing is persisted. The returned call keeps
// the original ID so its result still answers the original request.
func (a *Agent) RefineToolCall(ctx context.Context, original session.ToolCall, prompt string, current []session.Message) (*session.ToolCall, error) {
	name := original.Name
	instruction := fmt.Sprintf("You are an assistant helping a user refine the arguments for a tool called '%s'. "+
		"The user was about to execute this tool with initial arguments: %s. "+
		"The user provided the following feedback or refinement request: '%s'. "+
		"Your task is to generate a new set of arguments for the '%s' tool based on this feedback. "+
		"You MUST call the '%s' tool with these new arguments. Do not respond with text, only with the tool call.",
		name, original.ArgumentsJSON(), prompt, name, name)

	messages := append(Window(current, a.historyLimit), session.NewSystemMessage(instruction))
	req := llm.ChatRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
		Tools:       a.definitions,
		ToolChoice:  llm.ToolChoice{Mode: llm.ToolChoiceFunction, Function: name},
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		a.logger.Warn("refinement call failed", zap.String("tool", name), zap.Error(err))
		return nil, errors.Wrapf(err, "refinement call for '%s' failed", name)
	}

	for _, tc := range resp.Message.ToolCalls {
		if tc.Name != name {
			continue
		}
		args, err := decodeArguments(tc.RawArguments)
		if err != nil {
			a.logger.Warn("undecodable refined arguments", zap.String("tool", name), zap.String("raw", tc.RawArguments))
			return nil, errors.Wrapf(err, "refined arguments for '%s' are not valid JSON", name)
		}
		return &session.ToolCall{ID: original.ID, Name: name, RawArguments: tc.RawArguments, Arguments: args}, nil
	}
	return nil, errors.New("backend did not call '%s' while refining", name)
}
