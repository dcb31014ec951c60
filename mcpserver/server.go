package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/config"
	"github.com/isdmx/coderoom/room"
	"github.com/isdmx/coderoom/sandbox"
)

// Rooms is the read side of the session engine exposed to operators
type Rooms interface {
	Rooms() []room.Summary
	State(roomID string) (room.State, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config     *config.Config
	logger     *zap.Logger
	rooms      Rooms
	executor   sandbox.Executor
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// RunResult is the JSON text returned by execute_code
type RunResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// RoomState is the JSON text returned by get_room_state
type RoomState struct {
	Lang string `json:"lang"`
	Code string `json:"code"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, rooms Rooms, executor sandbox.Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		rooms:    rooms,
		executor: executor,
	}

	logger.Info("configuration loaded",
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Int("sandbox.max_concurrent_runs", cfg.Sandbox.MaxConcurrentRuns),
	)

	s.mcpServer = server.NewMCPServer("coderoom-operator", "Inspect collaborative code rooms and run code")

	s.registerListRoomsTool()
	s.registerGetRoomStateTool()
	s.registerExecuteCodeTool()

	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer)

	return s, nil
}

func (s *MCPServer) registerListRoomsTool() {
	tool := mcp.Tool{
		Name:        "list_rooms",
		Description: "List the live collaboration rooms with their language and participant count",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	s.mcpServer.AddTool(tool, s.handleListRooms)
}

func (s *MCPServer) registerGetRoomStateTool() {
	tool := mcp.Tool{
		Name:        "get_room_state",
		Description: "Return the current language and source text of a live room",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"room_id": map[string]any{
					"type":        "string",
					"description": "ID of the room",
				},
			},
			Required: []string{"room_id"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGetRoomState)
}

func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.Tool{
		Name:        "execute_code",
		Description: "Compile and run a program in the sandbox used by the rooms",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source text of the program",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Language of the program",
					"enum":        lo.Map(room.Languages, func(l room.Language, _ int) string { return string(l) }),
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

func (s *MCPServer) handleListRooms(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.rooms.Rooms())
}

func (s *MCPServer) handleGetRoomState(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roomID, err := request.RequireString("room_id")
	if err != nil {
		return nil, fmt.Errorf("room_id parameter is required: %w", err)
	}

	st, err := s.rooms.State(roomID)
	if errors.Is(err, room.ErrRoomNotFound) {
		return errorResult(fmt.Sprintf("room %q not found", roomID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}

	return jsonResult(RoomState{Lang: string(st.Language), Code: st.Source})
}

func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	if _, err := room.ParseLanguage(language); err != nil {
		return errorResult(err.Error()), nil
	}

	s.logger.Info("executing code in sandbox", zap.String("language", language), zap.Int("code_len", len(code)))

	result, err := s.executor.Run(ctx, sandbox.Request{Language: language, Source: code})
	if err != nil {
		s.logger.Error("sandbox execution failed", zap.Error(err), zap.String("language", language))
		return errorResult(fmt.Sprintf("Execution failed: %v", err)), nil
	}

	s.logger.Info("code execution completed",
		zap.String("language", language),
		zap.Bool("success", result.Success),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return jsonResult(RunResult{
		Success:  result.Success,
		Output:   result.Output,
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: message,
			},
		},
		IsError: true,
	}
}

// Addr returns the listen address of the MCP endpoint
func (s *MCPServer) Addr() string {
	return fmt.Sprintf(":%d", s.config.MCP.HTTPPort)
}

// ServeHTTP starts the streamable HTTP transport and blocks until it stops
func (s *MCPServer) ServeHTTP() error {
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", s.config.MCP.HTTPPort))
	return s.httpServer.Start(s.Addr())
}

// Shutdown stops the HTTP transport
func (s *MCPServer) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
