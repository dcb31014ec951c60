// Package logger provides structured logging capabilities.
//
// The logger package builds the zap logger shared by every component of the
// collaboration server. Development mode writes coloured console output,
// production mode writes JSON with ISO8601 timestamps.
//
// Usage:
//
//	log, err := logger.New("development", "debug")
//	if err != nil {
//	    panic(err)
//	}
//	log.Info("room created", zap.String("room_id", id))
package logger
