// Package terminal implements the command-line interface of Mallard.
//
// A Terminal is a line-oriented REPL built on liner. It plays three roles
// around one agent.Agent: it observes the agent and prints each turn's
// answer (rendered with glamour when stdout is a terminal), it is the
// confirm.Prompter that asks the user about pending tool calls, and it is
// the confirm.Reporter that prints what the gate decided.
//
// # Usage
//
//	a := agent.New(opts)
//	term := terminal.New(terminal.Options{
//	    Agent:     a,
//	    Registry:  registry,
//	    History:   history,
//	    Indexer:   indexer,
//	    Mode:      terminal.ModePrompt,
//	    Verbosity: terminal.ToolVerbosityInfo,
//	})
//	defer term.Close()
//	a.SetObserver(term)
//	a.SetHandler(confirm.New(registry, executor, a, term, nil, logger))
//	err := term.Run(ctx)
//
// # Confirmations
//
// Before asking, the terminal previews the call: a line diff for
// rewrite_file, the new content for create_file and the arguments for
// everything else. Answers are y (default), n, a (allow the tool for the
// rest of the process) and r (describe how the arguments should change).
// In auto mode every question is answered with y.
//
// # Verbosity Levels
//
//   - None: tool activity is not printed
//   - Info: one line per tool that runs without a question, and a warning
//     for results that are not successful
//   - All: arguments and full results of every call
package terminal
