package main

import (
	"context"
	"io"

	"github.com/m4xw311/mallard/agent"
	"github.com/m4xw311/mallard/agent/terminal"
	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/confirm"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/llm"
	"github.com/m4xw311/mallard/session"
	"github.com/m4xw311/mallard/storage"
	"github.com/m4xw311/mallard/tools"
	"go.uber.org/zap"
)

type appOptions struct {
	Mode      string
	Verbosity string
	Toolset   string
	Index     bool
	Markdown  bool
	Client    llm.Client // nil builds the client named in the config
	Input     terminal.LineReader
	Output    io.Writer
}

// app is one wired session: storage, tools, backend, agent, gate and
// terminal.
type app struct {
	agent    *agent.Agent
	terminal *terminal.Terminal
	history  *session.History
	indexer  *agent.Indexer
	registry *tools.Registry
	client   llm.Client

	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, root string, opts appOptions, logger *zap.Logger) (_ *app, err error) {
	mode, err := terminal.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	verbosity, err := terminal.ParseToolVerbosity(opts.Verbosity)
	if err != nil {
		return nil, err
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	store, err := storage.New(cfg.DataPath(root))
	if err != nil {
		return nil, err
	}
	if a.history, err = session.OpenHistory(store, logger); err != nil {
		return nil, err
	}

	ws, err := tools.NewWorkspace(root, cfg.FilesystemAccess, cfg.IgnoreDirs)
	if err != nil {
		return nil, err
	}
	runner := tools.NewShellRunner(root, cfg.CommandTimeout, logger)
	all, err := tools.NewRegistryFromConfig(ctx, cfg, ws, runner, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, all)
	a.registry = all
	if ts, ok := cfg.GetToolset(opts.Toolset); ok {
		if a.registry, err = all.Select(ts); err != nil {
			return nil, err
		}
	} else if opts.Toolset != "" && opts.Toolset != "default" {
		return nil, errors.New("toolset '%s' is not configured", opts.Toolset)
	}

	a.client = opts.Client
	if a.client == nil {
		if a.client, err = llm.New(ctx, cfg); err != nil {
			return nil, err
		}
		if c, ok := a.client.(io.Closer); ok {
			a.closers = append(a.closers, c)
		}
	}

	prompt, err := agent.LoadSystemPrompt(cfg.SystemPromptFile, a.registry.All())
	if err != nil {
		return nil, err
	}

	a.agent = agent.New(agent.Options{
		Client:        a.client,
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		History:       a.history,
		Registry:      a.registry,
		SystemPrompt:  prompt,
		HistoryLimit:  cfg.HistoryLimit,
		MaxIterations: cfg.MaxIterations,
		Logger:        logger,
	})

	if opts.Index {
		if a.indexer, err = agent.NewIndexer(store, logger); err != nil {
			return nil, err
		}
	}

	a.terminal = terminal.New(terminal.Options{
		Agent:     a.agent,
		Registry:  a.registry,
		History:   a.history,
		Indexer:   a.indexer,
		Mode:      mode,
		Verbosity: verbosity,
		Markdown:  opts.Markdown,
		Input:     opts.Input,
		Output:    opts.Output,
		Logger:    logger,
	})
	a.closers = append(a.closers, a.terminal)

	gate := confirm.New(a.registry, tools.NewExecutor(a.registry, logger), a.agent, a.terminal, session.NewConfirmationState(), logger)
	a.agent.SetObserver(a.terminal)
	a.agent.SetHandler(gate)

	logger.Info("session ready",
		zap.Int("tools", len(a.registry.All())),
		zap.String("mode", string(mode)),
		zap.String("history", a.history.Path()))
	return a, nil
}

// Close releases everything in reverse order of creation and returns the
// first error.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
