package tools

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
)

// MCPServer is a connection to one MCP server whose tools are exposed as
// handles. Handles stay valid until Close.
type MCPServer struct {
	client *mcpclient.Client
}

// ConnectMCP starts a stdio MCP server process, initializes the protocol
// and lists its tools.
func ConnectMCP(ctx context.Context, command string, env []string, args ...string) (*MCPServer, error) {
	c, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "starting MCP server %s", command)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "glint",
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(err, "initializing MCP server %s", command)
	}

	return &MCPServer{client: c}, nil
}

// Handles lists the server's tools as invocable handles.
func (s *MCPServer) Handles(ctx context.Context) ([]Handle, error) {
	result, err := s.client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "listing MCP tools")
	}

	handles := make([]Handle, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding schema for tool %s", tool.Name)
		}
		name := tool.Name
		handles = append(handles, Handle{
			Name:        name,
			Description: tool.Description,
			Schema:      schema,
			Invoke: func(ctx context.Context, args map[string]any) (string, error) {
				return s.call(ctx, name, args)
			},
		})
	}
	return handles, nil
}

func (s *MCPServer) call(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := s.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return "", errors.Wrapf(err, "calling tool %s", name)
	}

	text := renderContent(result.Content)
	if result.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", name, text)
	}
	return text, nil
}

func (s *MCPServer) Close() error {
	return s.client.Close()
}

// renderContent flattens a tool result into text. Text blocks are joined
// directly; anything else is carried through as JSON.
func renderContent(content []mcptypes.Content) string {
	if len(content) == 0 {
		return "tool executed successfully (no output)"
	}
	out := ""
	for _, item := range content {
		if tc, ok := item.(mcptypes.TextContent); ok {
			if out != "" {
				out += "\n"
			}
			out += tc.Text
			continue
		}
		data, err := json.Marshal(item)
		if err != nil {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += string(data)
	}
	return out
}
