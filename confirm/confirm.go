// Package confirm decides, per tool call, whether it runs right away, needs
// the user's approval or is declined.
//
// A call starts in AlwaysAllowed when the user said "always" for that tool
// earlier in the process, in AutoApproved when the tool does not ask for
// confirmation, and in PendingConfirmation otherwise. From
// PendingConfirmation the user can approve, approve for the rest of the
// process, decline, or ask the model to rework the arguments (Refining),
// which leads back to PendingConfirmation. The gate fails closed: anything
// it cannot resolve ends in an internal_error result, never in execution.
package confirm

import (
	"context"
	"strings"

	"github.com/m4xw311/mallard/agent"
	"github.com/m4xw311/mallard/logging"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
	"go.uber.org/zap"
)

type State int

const (
	StateUnresolved State = iota
	StateAlwaysAllowed
	StateAutoApproved
	StatePendingConfirmation
	StateRefining
	StateDeclined
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StateAlwaysAllowed:
		return "always_allowed"
	case StateAutoApproved:
		return "auto_approved"
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateRefining:
		return "refining"
	case StateDeclined:
		return "declined"
	case StateExecuted:
		return "executed"
	default:
		return "unresolved"
	}
}

// Choice is the user's answer to a pending confirmation.
type Choice string

const (
	ChoiceYes    Choice = "y"
	ChoiceNo     Choice = "n"
	ChoiceAlways Choice = "a"
	ChoiceRefine Choice = "r"
)

// ParseChoice maps user input onto a Choice. Empty input means yes.
func ParseChoice(input string) (Choice, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "y", "yes":
		return ChoiceYes, true
	case "n", "no":
		return ChoiceNo, true
	case "a", "always":
		return ChoiceAlways, true
	case "r", "refine":
		return ChoiceRefine, true
	}
	return "", false
}

// Prompter asks the user. Choose presents the call with its current
// arguments. An error from either method declines the call.
type Prompter interface {
	Choose(ctx context.Context, call session.ToolCall) (Choice, error)
	RefinementPrompt(ctx context.Context, call session.ToolCall) (string, error)
}

// Reporter is notified about the gate's progress. A Prompter that also
// implements Reporter is used as one.
type Reporter interface {
	StateChanged(call session.ToolCall, state State)
	RefinementFailed(call session.ToolCall, err error)
	Executed(call session.ToolCall, result string)
}

// Refiner produces new arguments for a call from user feedback.
type Refiner interface {
	RefineToolCall(ctx context.Context, call session.ToolCall, prompt string, current []session.Message) (*session.ToolCall, error)
}

// Gate is the agent.ToolCallHandler of an interactive session.
type Gate struct {
	registry *tools.Registry
	executor *tools.Executor
	refiner  Refiner
	prompter Prompter
	reporter Reporter
	state    *session.ConfirmationState
	logger   *zap.Logger
}

var _ agent.ToolCallHandler = (*Gate)(nil)

// New creates a gate. state is shared by every call of the session; a nil
// state starts a fresh one.
func New(registry *tools.Registry, executor *tools.Executor, refiner Refiner, prompter Prompter, state *session.ConfirmationState, logger *zap.Logger) *Gate {
	if state == nil {
		state = session.NewConfirmationState()
	}
	g := &Gate{
		registry: registry,
		executor: executor,
		refiner:  refiner,
		prompter: prompter,
		state:    state,
		logger:   logging.OrNop(logger),
	}
	if r, ok := prompter.(Reporter); ok {
		g.reporter = r
	}
	return g
}

// InitialState returns the state a call to the named tool starts in.
func (g *Gate) InitialState(name string) State {
	if g.state.AlwaysAllowed(name) {
		return StateAlwaysAllowed
	}
	if t, ok := g.registry.Get(name); ok && !t.RequiresConfirmation() {
		return StateAutoApproved
	}
	return StatePendingConfirmation
}

func (g *Gate) HandleToolCall(ctx context.Context, req *agent.ToolCallRequest) {
	req.SetResult(g.Resolve(ctx, req.Call, req.Context))
}

// Resolve drives one call through the state machine and returns the JSON
// result for the model. current is the context handed to the refiner.
func (g *Gate) Resolve(ctx context.Context, call session.ToolCall, current []session.Message) string {
	if _, ok := g.registry.Get(call.Name); !ok {
		g.logger.Warn("unknown tool requested", zap.String("tool", call.Name))
		return g.executor.Execute(ctx, call)
	}

	state := g.InitialState(call.Name)
	for {
		g.report(call, state)
		switch state {
		case StateAlwaysAllowed, StateAutoApproved:
			state = StateExecuted

		case StatePendingConfirmation:
			state = g.ask(ctx, call)

		case StateRefining:
			call = g.refine(ctx, call, current)
			state = StatePendingConfirmation

		case StateDeclined:
			g.logger.Info("tool call declined", zap.String("tool", call.Name), zap.String("id", call.ID))
			return tools.NewResult(tools.StatusDeclined, "User declined execution of tool '"+call.Name+"'.").String()

		case StateExecuted:
			g.logger.Info("executing tool call", zap.String("tool", call.Name), zap.String("id", call.ID))
			result := g.executor.Execute(ctx, call)
			if g.reporter != nil {
				g.reporter.Executed(call, result)
			}
			return result

		default:
			g.logger.Error("tool call left unresolved", zap.String("tool", call.Name), zap.Stringer("state", state))
			return tools.NewResult(tools.StatusInternalError, "Tool '"+call.Name+"' execution state unclear, declined by default.").String()
		}
	}
}

func (g *Gate) ask(ctx context.Context, call session.ToolCall) State {
	if g.prompter == nil {
		return StateDeclined
	}
	choice, err := g.prompter.Choose(ctx, call)
	if err != nil {
		g.logger.Info("confirmation unavailable, declining", zap.String("tool", call.Name), zap.Error(err))
		return StateDeclined
	}
	switch choice {
	case ChoiceYes:
		return StateExecuted
	case ChoiceAlways:
		g.state.Allow(call.Name)
		g.logger.Info("tool always allowed for this session", zap.String("tool", call.Name))
		return StateExecuted
	case ChoiceNo:
		return StateDeclined
	case ChoiceRefine:
		return StateRefining
	}
	return StateUnresolved
}

// refine returns the refined call, or call itself when there is no
// feedback or the refiner fails. The ID never changes.
func (g *Gate) refine(ctx context.Context, call session.ToolCall, current []session.Message) session.ToolCall {
	prompt, err := g.prompter.RefinementPrompt(ctx, call)
	if err != nil || strings.TrimSpace(prompt) == "" {
		return call
	}
	if g.refiner == nil {
		return call
	}
	refined, err := g.refiner.RefineToolCall(ctx, call, prompt, current)
	if err != nil || refined == nil {
		g.logger.Warn("refinement failed, keeping previous arguments", zap.String("tool", call.Name), zap.Error(err))
		if g.reporter != nil {
			g.reporter.RefinementFailed(call, err)
		}
		return call
	}
	refined.ID = call.ID
	return *refined
}

func (g *Gate) report(call session.ToolCall, state State) {
	if g.reporter != nil {
		g.reporter.StateChanged(call, state)
	}
}
