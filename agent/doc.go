// Package agent provides the conversation loop of the Mallard system.
//
// An Agent turns one user input into a bounded series of backend calls.
// Each call sees the system prompt, the most recent part of the project
// history and everything produced so far in the current turn. When the
// backend raises tool calls, each one is handed to a ToolCallHandler (in
// practice a confirm.Gate) and its result goes back to the backend on the
// next iteration. The loop ends on the first answer without tool calls, or
// after MaxIterations calls with a CallResult whose Final field is false.
//
// Every message is persisted through session.History the moment it exists,
// so a failed backend call leaves the history complete up to the failure.
//
// # Usage
//
//	a := agent.New(agent.Options{
//	    Client:        client,
//	    Model:         cfg.Model,
//	    Temperature:   cfg.Temperature,
//	    History:       history,
//	    Registry:      registry,
//	    SystemPrompt:  prompt,
//	    HistoryLimit:  cfg.HistoryLimit,
//	    MaxIterations: cfg.MaxIterations,
//	    Observer:      term,
//	    Handler:       gate,
//	    Logger:        logger,
//	})
//	result, err := a.Call(ctx, "add a --json flag to the list command")
//
// # Notifications
//
// Observer.BeforeCall receives the message list and tool definitions of the
// next backend call and may replace either. Observer.ResponseReceived gets
// the CallResult of the turn, final or not. ToolCallHandler.HandleToolCall
// must call SetResult; a request left without a result is answered with an
// error result.
//
// # Refinement
//
// RefineToolCall asks the backend to repeat one tool call with arguments
// changed according to user feedback. It forces the backend to call that
// tool and never touches the history.
//
// # Indexing
//
// Indexer runs ExplorePrompt once per project and keeps the answer in the
// "indexer" collection next to the history.
package agent
