// Package mcptools exposes the spotlight invocable commands as MCP tools.
// Each tool forwards to a running spotlight instance.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/eliteGoblin/focusd/spotlight/internal/command"
	"github.com/eliteGoblin/focusd/spotlight/internal/domain"
)

// Invoker forwards a command to spotlight. ipc.Client implements it.
type Invoker interface {
	Invoke(command string, payload any) (json.RawMessage, error)
}

// Server wraps the MCP server and the spotlight connection.
type Server struct {
	invoker Invoker
	mcp     *mcpserver.MCPServer
}

// NewServer creates an MCP server with all spotlight tools registered.
func NewServer(invoker Invoker, version string) *Server {
	s := &Server{
		invoker: invoker,
		mcp:     mcpserver.NewMCPServer("spotlight", version),
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool(command.InitWindow,
			mcp.WithDescription("Create the spotlight window if it does not exist. Safe to call repeatedly."),
		),
		s.simple(command.InitWindow, "spotlight window ready"),
	)
	s.mcp.AddTool(
		mcp.NewTool(command.ShowWindow,
			mcp.WithDescription("Show the spotlight window above other windows and focus it"),
		),
		s.simple(command.ShowWindow, "spotlight window shown"),
	)
	s.mcp.AddTool(
		mcp.NewTool(command.HideWindow,
			mcp.WithDescription("Hide the spotlight window without destroying it"),
		),
		s.simple(command.HideWindow, "spotlight window hidden"),
	)
	s.mcp.AddTool(
		mcp.NewTool(command.ToggleWindow,
			mcp.WithDescription("Hide the spotlight window if visible, otherwise show it"),
		),
		s.simple(command.ToggleWindow, "spotlight window toggled"),
	)
	s.mcp.AddTool(
		mcp.NewTool(command.RequestPermission,
			mcp.WithDescription("Check the OS accessibility permission, optionally asking the user to grant it"),
			mcp.WithBoolean("prompt", mcp.Description("Show the OS permission prompt if not yet granted")),
		),
		s.handlePermission,
	)
	s.mcp.AddTool(
		mcp.NewTool(command.Status,
			mcp.WithDescription("Report window visibility, permission state and worker bridge counters"),
		),
		s.handleStatus,
	)
}

func (s *Server) simple(name, okText string) mcpserver.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if _, err := s.invoker.Invoke(name, nil); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(okText), nil
	}
}

func (s *Server) handlePermission(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := false
	if v, ok := request.GetArguments()["prompt"].(bool); ok {
		prompt = v
	}

	data, err := s.invoker.Invoke(command.RequestPermission, command.PermissionPayload{Prompt: prompt})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var result command.PermissionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bad permission response: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("accessibility permission: %s", result.State)), nil
}

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.invoker.Invoke(command.Status, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var status domain.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("bad status response: %v", err)), nil
	}
	b, _ := yaml.Marshal(status)
	return mcp.NewToolResultText(string(b)), nil
}
