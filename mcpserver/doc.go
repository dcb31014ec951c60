// Package mcpserver provides the Model Context Protocol (MCP) operator surface.
//
// The server uses the mark3labs/mcp-go library over its streamable HTTP
// transport and exposes three tools:
//
//   - list_rooms returns the live rooms as a JSON array
//   - get_room_state returns {lang, code} of one room
//   - execute_code runs a program through the same sandbox executor the
//     rooms use and returns {success, output, exit_code}
//
// Usage:
//
//	server, err := mcpserver.New(cfg, logger, engine, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeHTTP()
package mcpserver
