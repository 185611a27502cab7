package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/m4xw311/mallard/agent"
	"github.com/m4xw311/mallard/confirm"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/logging"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/tools"
	"github.com/peterh/liner"
	"go.uber.org/zap"
)

// Mode decides who answers pending confirmations.
type Mode string

const (
	ModePrompt Mode = "prompt"
	ModeAuto   Mode = "auto"
)

// ToolVerbosity controls how much of each tool call is printed.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModePrompt, ModeAuto:
		return m, nil
	}
	return "", errors.New("invalid mode %q: must be 'prompt' or 'auto'", s)
}

func ParseToolVerbosity(s string) (ToolVerbosity, error) {
	switch v := ToolVerbosity(strings.ToLower(s)); v {
	case ToolVerbosityNone, ToolVerbosityInfo, ToolVerbosityAll:
		return v, nil
	}
	return "", errors.New("invalid tool verbosity %q: must be 'none', 'info' or 'all'", s)
}

const (
	inputPrompt  = ":> "
	noTextNotice = "(AI action completed. No further text response.)"
)

var exitWords = map[string]bool{"exit": true, "quit": true, "/exit": true, "/quit": true}

// LineReader is the part of *liner.State the terminal uses.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

type Options struct {
	Agent     *agent.Agent
	Registry  *tools.Registry
	History   *session.History
	Indexer   *agent.Indexer // nil skips indexing
	Mode      Mode
	Verbosity ToolVerbosity
	Markdown  bool       // render responses through glamour
	Input     LineReader // defaults to a liner.State on stdin
	Output    io.Writer  // defaults to stdout
	Logger    *zap.Logger
}

// Terminal is the line-oriented REPL. It observes the agent, answers the
// confirmation gate and reports tool activity.
type Terminal struct {
	agent     *agent.Agent
	registry  *tools.Registry
	history   *session.History
	indexer   *agent.Indexer
	mode      Mode
	verbosity ToolVerbosity
	renderer  *glamour.TermRenderer
	in        LineReader
	out       io.Writer
	logger    *zap.Logger
}

var (
	_ agent.Observer   = (*Terminal)(nil)
	_ confirm.Prompter = (*Terminal)(nil)
	_ confirm.Reporter = (*Terminal)(nil)
)

func New(opts Options) *Terminal {
	t := &Terminal{
		agent:     opts.Agent,
		registry:  opts.Registry,
		history:   opts.History,
		indexer:   opts.Indexer,
		mode:      opts.Mode,
		verbosity: opts.Verbosity,
		in:        opts.Input,
		out:       opts.Output,
		logger:    logging.OrNop(opts.Logger),
	}
	if t.mode == "" {
		t.mode = ModePrompt
	}
	if t.verbosity == "" {
		t.verbosity = ToolVerbosityInfo
	}
	if t.out == nil {
		t.out = os.Stdout
	}
	if t.in == nil {
		line := liner.NewLiner()
		line.SetCtrlCAborts(true)
		t.in = line
	}
	if opts.Markdown {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			t.logger.Warn("markdown renderer unavailable", zap.Error(err))
		} else {
			t.renderer = r
		}
	}
	return t
}

// Close releases the line editor.
func (t *Terminal) Close() error {
	return t.in.Close()
}

// Run starts the interactive session and returns when the user leaves or
// input ends.
func (t *Terminal) Run(ctx context.Context) error {
	t.seedHistory()
	t.println(welcomeStyle.Render("Welcome to Mallard. Ask anything about this project."))
	t.println(dimStyle.Render(`Type "exit" or "quit" to leave.`))

	if err := t.index(ctx); err != nil {
		return err
	}

	for {
		input, err := t.in.Prompt(inputPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				t.println("")
				return nil
			}
			return errors.Wrapf(err, "read input")
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			return nil
		}
		t.in.AppendHistory(input)

		if err := t.RunOnce(ctx, input); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.printError(err)
		}
	}
}

// RunOnce performs one agent call. The response is printed through
// ResponseReceived.
func (t *Terminal) RunOnce(ctx context.Context, input string) error {
	_, err := t.agent.Call(ctx, input)
	if err != nil {
		t.logger.Error("agent call failed", zap.Error(err))
	}
	return err
}

func (t *Terminal) seedHistory() {
	if t.history == nil {
		return
	}
	inputs, err := t.history.UserInputs()
	if err != nil {
		t.logger.Warn("could not load input history", zap.Error(err))
		return
	}
	for _, in := range inputs {
		t.in.AppendHistory(in)
	}
}

func (t *Terminal) index(ctx context.Context) error {
	if t.indexer == nil {
		return nil
	}
	indexed, err := t.indexer.IsIndexed()
	if err != nil {
		return errors.Wrapf(err, "read index state")
	}
	if indexed {
		return nil
	}
	t.println(dimStyle.Render("Project codebase first indexing..."))
	if err := t.indexer.Run(ctx, t.agent); err != nil {
		t.printError(err)
	}
	t.println(dimStyle.Render("Project indexed"))
	return nil
}

func (t *Terminal) BeforeCall(ev *agent.BeforeCallEvent) {
	t.logger.Debug("backend call", zap.Int("messages", len(ev.Messages)), zap.Int("tools", len(ev.Tools)))
}

func (t *Terminal) ResponseReceived(result *agent.CallResult) {
	if t.indexer != nil && t.indexer.InProgress() {
		return
	}
	switch {
	case !result.Final:
		t.println(warningStyle.Render(result.Text))
	case result.HasText():
		t.println(t.render(result.Text))
	default:
		t.println(dimStyle.Render(noTextNotice))
	}
}

func (t *Terminal) render(text string) string {
	if t.renderer == nil {
		return text
	}
	out, err := t.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// Choose shows the pending call and asks until the answer is one of
// y/n/a/r. In auto mode it answers yes without asking.
func (t *Terminal) Choose(ctx context.Context, call session.ToolCall) (confirm.Choice, error) {
	if t.mode == ModeAuto {
		t.printCompact(call)
		return confirm.ChoiceYes, nil
	}
	t.preview(call)
	question := questionStyle.Render(fmt.Sprintf("Allow tool '%s'? [Y]es/[n]o/[a]lways/[r]efine: ", call.Name))
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		answer, err := t.in.Prompt(question)
		if err != nil {
			return "", errors.Wrapf(err, "read confirmation")
		}
		if choice, ok := confirm.ParseChoice(answer); ok {
			return choice, nil
		}
		t.println(dimStyle.Render("Please answer y, n, a or r."))
	}
}

// RefinementPrompt reads the feedback used to rework the call's arguments.
func (t *Terminal) RefinementPrompt(ctx context.Context, call session.ToolCall) (string, error) {
	answer, err := t.in.Prompt(questionStyle.Render("How should the arguments change? "))
	if err != nil {
		return "", errors.Wrapf(err, "read refinement")
	}
	return strings.TrimSpace(answer), nil
}

func (t *Terminal) StateChanged(call session.ToolCall, state confirm.State) {
	switch state {
	case confirm.StateAutoApproved, confirm.StateAlwaysAllowed:
		t.printCompact(call)
	case confirm.StateDeclined:
		if t.verbosity != ToolVerbosityNone {
			t.println(dimStyle.Render(fmt.Sprintf("Declined tool %s.", call.Name)))
		}
	}
}

func (t *Terminal) RefinementFailed(call session.ToolCall, err error) {
	t.println(warningStyle.Render("AI could not refine arguments. Using previous."))
}

func (t *Terminal) Executed(call session.ToolCall, result string) {
	switch t.verbosity {
	case ToolVerbosityAll:
		t.println(dimStyle.Render(fmt.Sprintf("Tool %s output: %s", call.Name, result)))
	case ToolVerbosityInfo:
		if status := tools.Status(result); status != tools.StatusSuccess {
			t.println(warningStyle.Render(fmt.Sprintf("Tool %s finished with status %s.", call.Name, status)))
		}
	}
}

// printCompact prints the one-line notice for calls that run without a
// question.
func (t *Terminal) printCompact(call session.ToolCall) {
	switch t.verbosity {
	case ToolVerbosityNone:
		return
	case ToolVerbosityAll:
		t.println(toolStyle.Render(fmt.Sprintf("Used tool %s (args: %s)", call.Name, call.ArgumentsJSON())))
		return
	}
	if target := compactTarget(call.Arguments); target != "" {
		t.println(toolStyle.Render(fmt.Sprintf("Used tool %s (args: %s)", call.Name, target)))
		return
	}
	t.println(toolStyle.Render(fmt.Sprintf("Used tool %s", call.Name)))
}

func compactTarget(args map[string]any) string {
	for _, key := range []string{"filename", "path", "pattern", "command"} {
		if s, ok := args[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// preview shows what a pending call is about to do: a diff for rewrites,
// the new content for creations, the arguments otherwise.
func (t *Terminal) preview(call session.ToolCall) {
	t.println(toolStyle.Render(fmt.Sprintf("AI wants to use tool %s", call.Name)))

	if tool, ok := t.registry.Get(call.Name); ok {
		if p, ok := tool.(tools.DiffPreviewer); ok {
			hunks, err := p.PreviewDiff(call.Arguments)
			if err == nil {
				t.printFileHeader(call.Arguments)
				if len(hunks) == 0 {
					t.println(dimStyle.Render("(no changes)"))
				}
				for _, h := range hunks {
					t.println(dimStyle.Render(fmt.Sprintf("Line: %d", h.StartLine)))
					for _, l := range h.Removed {
						t.println(removedStyle.Render("- " + l))
					}
					for _, l := range h.Added {
						t.println(addedStyle.Render("+ " + l))
					}
				}
				return
			}
			t.logger.Debug("diff preview unavailable", zap.String("tool", call.Name), zap.Error(err))
		}
	}

	if call.Name == "create_file" {
		if content, ok := call.Arguments["content"].(string); ok {
			t.printFileHeader(call.Arguments)
			t.println(addedStyle.Render(content))
			return
		}
	}

	args, err := json.MarshalIndent(call.Arguments, "", "  ")
	if err != nil {
		args = []byte(call.ArgumentsJSON())
	}
	t.println(dimStyle.Render("Arguments: " + string(args)))
}

func (t *Terminal) printFileHeader(args map[string]any) {
	if name, ok := args["filename"].(string); ok {
		t.println(dimStyle.Render("File: " + name))
	}
}

func (t *Terminal) printError(err error) {
	t.println(errorStyle.Render("Error: " + err.Error()))
}

func (t *Terminal) println(s string) {
	fmt.Fprintln(t.out, s)
}
