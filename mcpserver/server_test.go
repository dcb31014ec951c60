package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderoom/config"
	"github.com/isdmx/coderoom/mocks"
	"github.com/isdmx/coderoom/room"
	"github.com/isdmx/coderoom/sandbox"
)

type stubRooms struct {
	summaries []room.Summary
	states    map[string]room.State
}

func (s stubRooms) Rooms() []room.Summary { return s.summaries }

func (s stubRooms) State(roomID string) (room.State, error) {
	st, ok := s.states[roomID]
	if !ok {
		return room.State{}, room.ErrRoomNotFound
	}
	return st, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{HTTPPort: 3000},
		Sandbox: config.SandboxConfig{Backend: "docker", TimeoutSec: 10, MemoryMB: 256, MaxConcurrentRuns: 2},
		MCP:     config.MCPConfig{Enabled: true, HTTPPort: 3001},
	}
}

func newTestServer(t *testing.T, rooms Rooms) (*MCPServer, *mocks.MockExecutor) {
	t.Helper()
	executor := mocks.NewMockExecutor(gomock.NewController(t))
	s, err := New(testConfig(), zaptest.NewLogger(t), rooms, executor)
	require.NoError(t, err)
	return s, executor
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return text.Text
}

func TestNewMCPServer(t *testing.T) {
	s, executor := newTestServer(t, stubRooms{})

	assert.ElementsMatch(t, []string{"list_rooms", "get_room_state", "execute_code"}, lo.Keys(s.mcpServer.ListTools()))
	assert.Equal(t, executor, s.executor)
	assert.Equal(t, ":3001", s.Addr())
}

func TestListRooms(t *testing.T) {
	rooms := stubRooms{summaries: []room.Summary{
		{ID: "a", Language: room.LanguageC, Participants: 1},
		{ID: "b", Language: room.LanguagePython, Participants: 3},
	}}
	s, _ := newTestServer(t, rooms)

	res, err := s.handleListRooms(context.Background(), callRequest("list_rooms", nil))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.JSONEq(t,
		`[{"id":"a","language":"c","participants":1},{"id":"b","language":"python","participants":3}]`,
		resultText(t, res))
}

func TestGetRoomState(t *testing.T) {
	rooms := stubRooms{states: map[string]room.State{"r1": {Language: room.LanguageCPP, Source: "int main(){}"}}}
	s, _ := newTestServer(t, rooms)

	t.Run("Found", func(t *testing.T) {
		res, err := s.handleGetRoomState(context.Background(), callRequest("get_room_state", map[string]any{"room_id": "r1"}))
		require.NoError(t, err)

		var st RoomState
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &st))
		assert.Equal(t, RoomState{Lang: "cpp", Code: "int main(){}"}, st)
	})

	t.Run("NotFound", func(t *testing.T) {
		res, err := s.handleGetRoomState(context.Background(), callRequest("get_room_state", map[string]any{"room_id": "nope"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "not found")
	})

	t.Run("MissingArgument", func(t *testing.T) {
		_, err := s.handleGetRoomState(context.Background(), callRequest("get_room_state", map[string]any{}))
		assert.Error(t, err)
	})
}

func TestExecuteCode(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		s, executor := newTestServer(t, stubRooms{})
		executor.EXPECT().
			Run(gomock.Any(), sandbox.Request{Language: "python", Source: "print(1)"}).
			Return(sandbox.Result{Success: true, Output: "1\n"}, nil)

		res, err := s.handleExecuteCode(context.Background(),
			callRequest("execute_code", map[string]any{"code": "print(1)", "language": "python"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)

		var out RunResult
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
		assert.Equal(t, RunResult{Success: true, Output: "1\n"}, out)
	})

	t.Run("Timeout", func(t *testing.T) {
		s, executor := newTestServer(t, stubRooms{})
		executor.EXPECT().Run(gomock.Any(), gomock.Any()).
			Return(sandbox.Result{Output: "\nExecution timed out after 10s", ExitCode: -1, TimedOut: true}, nil)

		res, err := s.handleExecuteCode(context.Background(),
			callRequest("execute_code", map[string]any{"code": "for(;;);", "language": "c"}))
		require.NoError(t, err)

		var out RunResult
		require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
		assert.True(t, out.TimedOut)
		assert.False(t, out.Success)
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		s, executor := newTestServer(t, stubRooms{})
		executor.EXPECT().Run(gomock.Any(), gomock.Any()).Times(0)

		res, err := s.handleExecuteCode(context.Background(),
			callRequest("execute_code", map[string]any{"code": "x", "language": "rust"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(t, res), "unsupported language")
	})

	t.Run("ExecutorError", func(t *testing.T) {
		s, executor := newTestServer(t, stubRooms{})
		executor.EXPECT().Run(gomock.Any(), gomock.Any()).Return(sandbox.Result{}, errors.New("docker not running"))

		res, err := s.handleExecuteCode(context.Background(),
			callRequest("execute_code", map[string]any{"code": "x", "language": "c"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Equal(t, "Execution failed: docker not running", resultText(t, res))
	})

	t.Run("MissingArguments", func(t *testing.T) {
		s, _ := newTestServer(t, stubRooms{})

		_, err := s.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{"language": "c"}))
		assert.Error(t, err)
		_, err = s.handleExecuteCode(context.Background(), callRequest("execute_code", map[string]any{"code": "x"}))
		assert.Error(t, err)
	})
}
