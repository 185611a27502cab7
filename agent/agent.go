package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/llm"
	"github.com/m4xw311/mallard/logging"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
	"go.uber.org/zap"
)

const (
	DefaultMaxIterations = 5
	DefaultTemperature   = 0.6

	// MaxIterationsText is the result text when the iteration cap is hit
	// and the last assistant message had no text of its own.
	MaxIterationsText = "Max tool call iterations reached."
)

// CallResult is what one Call produced. Final is false when the loop
// stopped at the iteration cap instead of on a text-only answer.
type CallResult struct {
	Text      string
	ToolCalls []session.ToolCall
	Raw       any
	Final     bool
}

func (r *CallResult) HasText() bool      { return strings.TrimSpace(r.Text) != "" }
func (r *CallResult) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// BeforeCallEvent is handed to the Observer before every backend call.
// Messages and Tools may be replaced; the request uses whatever is left.
type BeforeCallEvent struct {
	Messages []session.Message
	Tools    []tools.Definition
}

// Observer is notified about the lifecycle of a Call.
type Observer interface {
	BeforeCall(ev *BeforeCallEvent)
	ResponseReceived(result *CallResult)
}

// ToolCallRequest asks the handler to resolve one tool call. Context is the
// message list of the backend call that raised it.
type ToolCallRequest struct {
	Call    session.ToolCall
	Context []session.Message

	result string
	set    bool
}

// SetResult records the JSON result to send back to the model.
func (r *ToolCallRequest) SetResult(result string) {
	r.result = result
	r.set = true
}

func (r *ToolCallRequest) Result() (string, bool) {
	return r.result, r.set
}

// ToolCallHandler decides about and runs tool calls. It blocks until the
// call is resolved.
type ToolCallHandler interface {
	HandleToolCall(ctx context.Context, req *ToolCallRequest)
}

type Options struct {
	Client        llm.Client
	Model         string
	Temperature   float64
	History       *session.History
	Registry      *tools.Registry
	SystemPrompt  string
	HistoryLimit  int
	MaxIterations int
	Observer      Observer
	Handler       ToolCallHandler
	Logger        *zap.Logger
}

// Agent runs the bounded tool-calling loop against one backend.
type Agent struct {
	client        llm.Client
	model         string
	temperature   float64
	history       *session.History
	definitions   []tools.Definition
	systemPrompt  string
	historyLimit  int
	maxIterations int
	observer      Observer
	handler       ToolCallHandler
	logger        *zap.Logger
}

func New(opts Options) *Agent {
	a := &Agent{
		client:        opts.Client,
		model:         opts.Model,
		temperature:   opts.Temperature,
		history:       opts.History,
		systemPrompt:  opts.SystemPrompt,
		historyLimit:  opts.HistoryLimit,
		maxIterations: opts.MaxIterations,
		observer:      opts.Observer,
		handler:       opts.Handler,
		logger:        logging.OrNop(opts.Logger),
	}
	if opts.Registry != nil {
		a.definitions = opts.Registry.Definitions()
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}
	if a.observer == nil {
		a.observer = nopObserver{}
	}
	return a
}

// SetObserver replaces the observer; nil disables notifications.
func (a *Agent) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	a.observer = o
}

// SetHandler replaces the tool call handler.
func (a *Agent) SetHandler(h ToolCallHandler) {
	a.handler = h
}

// Call runs one turn: the input is persisted first, then the backend is
// called until it answers without tool calls or the iteration cap is hit.
// Backend errors are returned as is; everything persisted up to that point
// stays in the history.
func (a *Agent) Call(ctx context.Context, input string) (*CallResult, error) {
	past, err := a.history.All()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load history")
	}
	past = Window(past, a.historyLimit)

	var turn []session.Message
	record := func(msg session.Message) error {
		if err := a.history.Add(msg); err != nil {
			return errors.Wrapf(err, "failed to persist %s message", msg.Role)
		}
		turn = append(turn, msg)
		return nil
	}

	if err := record(session.NewUserMessage(input)); err != nil {
		return nil, err
	}

	var (
		last      session.Message
		lastCalls []session.ToolCall
		lastRaw   any
	)
	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		payload := make([]session.Message, 0, len(past)+len(turn)+1)
		payload = append(payload, session.NewSystemMessage(a.systemPrompt))
		payload = append(payload, past...)
		payload = append(payload, turn...)

		ev := &BeforeCallEvent{Messages: payload, Tools: a.definitions}
		a.observer.BeforeCall(ev)

		req := llm.ChatRequest{
			Model:       a.model,
			Messages:    ev.Messages,
			Temperature: a.temperature,
			Tools:       ev.Tools,
		}
		if len(ev.Tools) > 0 {
			req.ToolChoice = llm.ToolChoice{Mode: llm.ToolChoiceAuto}
		}

		a.logger.Debug("calling backend",
			zap.Int("iteration", iteration),
			zap.Int("messages", len(req.Messages)),
			zap.Int("tools", len(req.Tools)))
		resp, err := a.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return nil, errors.Wrapf(err, "backend call %d failed", iteration)
		}

		calls := a.decodeToolCalls(resp.Message.ToolCalls)
		last = session.NewAssistantMessage(resp.Message.Content, calls)
		lastCalls, lastRaw = calls, resp.Raw
		if err := record(last); err != nil {
			return nil, err
		}
		a.logger.Debug("backend answered", zap.Int("iteration", iteration), zap.Int("tool_calls", len(calls)))

		if len(calls) == 0 {
			result := &CallResult{Text: resp.Message.Content, Raw: resp.Raw, Final: true}
			a.observer.ResponseReceived(result)
			return result, nil
		}

		for _, call := range calls {
			tcr := &ToolCallRequest{Call: call, Context: ev.Messages}
			if a.handler != nil {
				a.handler.HandleToolCall(ctx, tcr)
			}
			result, ok := tcr.Result()
			if !ok {
				result = tools.Failure("Tool '%s' execution result not provided.", call.Name).String()
			}
			if err := record(session.NewToolMessage(call, result)); err != nil {
				return nil, err
			}
		}
	}

	text := last.Content
	if !last.HasText() {
		text = MaxIterationsText
	}
	a.logger.Warn("iteration cap reached", zap.Int("max_iterations", a.maxIterations))
	result := &CallResult{Text: text, ToolCalls: lastCalls, Raw: lastRaw, Final: false}
	a.observer.ResponseReceived(result)
	return result, nil
}

// decodeToolCalls parses each call's argument string. A call whose
// arguments do not decode gets a synthetic argument map describing the
// problem, so the model sees it in the tool result and can retry.
func (a *Agent) decodeToolCalls(raw []session.ToolCall) []session.ToolCall {
	calls := make([]session.ToolCall, 0, len(raw))
	for _, tc := range raw {
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		args, err := decodeArguments(tc.RawArguments)
		if err != nil {
			a.logger.Warn("undecodable tool call arguments",
				zap.String("tool", tc.Name), zap.String("raw", tc.RawArguments), zap.Error(err))
			args = map[string]any{
				"error":         "Invalid JSON arguments from LLM",
				"raw_arguments": tc.RawArguments,
			}
		}
		tc.Arguments = args
		calls = append(calls, tc)
	}
	return calls
}

func decodeArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

type nopObserver struct{}

func (nopObserver) BeforeCall(*BeforeCallEvent)   {}
func (nopObserver) ResponseReceived(*CallResult) {}
