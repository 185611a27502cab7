// Package mcp exposes the tools of external MCP servers to the agent.
package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/mallard/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// MCPClient manages the connection to a single MCP server.
type MCPClient struct {
	Name   string
	cmd    *exec.Cmd
	conn   *mcpsdk.ClientSession
	tools  []*MCPTool
	logger *zap.Logger
}

// NewMCPClient starts the MCP server subprocess, connects to it and discovers
// the tools it provides.
func NewMCPClient(ctx context.Context, name, command string, args []string, logger *zap.Logger) (*MCPClient, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	client, err := connect(ctx, name, mcpsdk.NewCommandTransport(cmd), logger)
	if err != nil {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

func connect(ctx context.Context, name string, transport mcpsdk.Transport, logger *zap.Logger) (*MCPClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "mallard", Version: "v1.0.0"}, nil)
	conn, err := sdkClient.Connect(ctx, transport)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &MCPClient{Name: name, conn: conn, logger: logger.With(zap.String("mcp_server", name))}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools = append(client.tools, &MCPTool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				schema:      schemaMap(t.InputSchema),
				client:      client,
			})
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	client.logger.Info("initialized MCP client", zap.Int("tools", len(client.tools)))
	return client, nil
}

// schemaMap converts the server's input schema to the plain map exported to
// chat backends. Servers without a schema get an empty object schema.
func schemaMap(schema any) map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	raw, err := json.Marshal(schema)
	if err != nil || string(raw) == "null" {
		return out
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded == nil {
		return out
	}
	if _, ok := decoded["type"]; !ok {
		decoded["type"] = "object"
	}
	if _, ok := decoded["properties"]; !ok {
		decoded["properties"] = map[string]any{}
	}
	return decoded
}

// Tools returns the tools discovered at connection time.
func (c *MCPClient) Tools() []*MCPTool {
	return c.tools
}

// Stop closes the session and terminates the server subprocess.
func (c *MCPClient) Stop() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		c.logger.Info("terminating MCP server")
		if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

// MCPTool represents a tool available from an external MCP server. It
// satisfies tools.Tool.
type MCPTool struct {
	serverName  string
	toolName    string
	description string
	schema      map[string]any
	client      *MCPClient
}

// Name is the tool's own name. Some backends reject separators such as ':'
// in function names, so the server is not part of it.
func (t *MCPTool) Name() string               { return t.toolName }
func (t *MCPTool) Server() string             { return t.serverName }
func (t *MCPTool) Description() string        { return t.description }
func (t *MCPTool) Parameters() map[string]any { return t.schema }
func (t *MCPTool) RequiresConfirmation() bool { return true }
func (t *MCPTool) FewShotExamples() string    { return "" }

// Execute forwards the call to the server and returns the concatenated text
// content of the reply.
func (t *MCPTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on MCP server '%s'", t.toolName, t.serverName)
	}
	var sb strings.Builder
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", errors.New("MCP tool '%s' reported an error: %s", t.toolName, sb.String())
	}
	return sb.String(), nil
}
