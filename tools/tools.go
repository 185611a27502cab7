package tools

import (
	"context"
	"path"
	"strings"

	"github.com/m4xw311/mallard/config"
	"github.com/m4xw311/mallard/errors"
	"github.com/m4xw311/mallard/tools/mcp"
	"go.uber.org/zap"
)

// Tool defines the interface for any action the agent can take.
//
// Execute returns the JSON result object handed back to the model. Expected
// failures (missing file, bad argument) are reported as a Failure result;
// a returned error is reserved for conditions the tool cannot describe itself
// and is normalized by the Executor.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	RequiresConfirmation() bool
	FewShotExamples() string
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Definition is the function-tool shape exported to chat backends.
type Definition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefinitionOf builds the exported definition of t.
func DefinitionOf(t Tool) Definition {
	params := t.Parameters()
	if params == nil {
		params = object(nil, nil)
	}
	return Definition{
		Type: "function",
		Function: FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  params,
		},
	}
}

// Registry holds all available tools, in registration order.
type Registry struct {
	tools      map[string]Tool
	order      []string
	mcpClients []*mcp.MCPClient
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t. Names are unique within a registry; a second tool with the
// same name is a configuration error.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return &errors.ConfigError{Key: "tools", Reason: "tool name must not be empty"}
	}
	if _, exists := r.tools[name]; exists {
		return &errors.ConfigError{Key: name, Reason: "a tool with this name is already registered"}
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, t := range r.All() {
		defs = append(defs, DefinitionOf(t))
	}
	return defs
}

// Select returns a registry restricted to the tools named by ts. Entries may
// be glob patterns ("git_*"); tools served over MCP also match as
// "<server>.<tool>", so "gopls.*" selects every tool of that server. A plain
// name that matches nothing is an error.
func (r *Registry) Select(ts *config.Toolset) (*Registry, error) {
	selected := NewRegistry()
	for _, entry := range ts.Tools {
		matched := false
		for _, t := range r.All() {
			if !matchesToolset(entry, t) {
				continue
			}
			matched = true
			if _, dup := selected.tools[t.Name()]; !dup {
				_ = selected.Register(t)
			}
		}
		if !matched && !strings.ContainsAny(entry, "*?[") {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", entry, ts.Name)
		}
	}
	return selected, nil
}

func matchesToolset(pattern string, t Tool) bool {
	if ok, _ := path.Match(pattern, t.Name()); ok {
		return true
	}
	if s, isMCP := t.(interface{ Server() string }); isMCP {
		ok, _ := path.Match(pattern, s.Server()+"."+t.Name())
		return ok
	}
	return false
}

// Close stops every MCP server started for this registry.
func (r *Registry) Close() error {
	var first error
	for _, c := range r.mcpClients {
		if err := c.Stop(); err != nil && first == nil {
			first = err
		}
	}
	r.mcpClients = nil
	return first
}

// NewRegistryFromConfig registers the built-in tools followed by every tool
// offered by the configured MCP servers. A server that fails to start is
// logged and skipped.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, ws *Workspace, runner *ShellRunner, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := NewRegistry()

	builtins := []Tool{
		&ReadFileTool{ws: ws},
		&CreateFileTool{ws: ws},
		&RewriteFileTool{ws: ws},
		&DeleteFileTool{ws: ws},
		&ListDirectoryTool{ws: ws},
		&FindTextInFilesTool{ws: ws},
		&GitStatusTool{runner: runner},
		&GitHistoryTool{runner: runner, ws: ws},
		&GitAddTool{runner: runner},
		&GitCommitTool{runner: runner},
		&GitPushTool{runner: runner},
		&GitPullTool{runner: runner},
		&ExecuteCommandTool{runner: runner, allowedCommands: cfg.AllowedCommands, logger: logger},
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}

	for _, srv := range cfg.AdditionalMCPServers {
		client, err := mcp.NewMCPClient(ctx, srv.Name, srv.Command, srv.Args, logger)
		if err != nil {
			logger.Warn("skipping MCP server", zap.String("server", srv.Name), zap.Error(err))
			continue
		}
		r.mcpClients = append(r.mcpClients, client)
		for _, t := range client.Tools() {
			if err := r.Register(t); err != nil {
				r.Close()
				return nil, err
			}
		}
	}
	return r, nil
}
