// Package main is the entry point for the coderoom collaboration server.
//
// coderoom hosts shared code rooms: participants join a room over WebSocket,
// edit one C, C++ or Python source together, see each other's cursors and run
// the program in a sandbox with the output broadcast to the whole room. A
// small HTTP API and an optional MCP endpoint expose the live rooms to
// operators.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
