// Package ws is the WebSocket transport of coderoom.
//
// Every connection becomes a Client with its own UUID. The read pump decodes
// {"event","data"} text frames and hands them to the session engine one at a
// time, which keeps processing per connection in arrival order. The write
// pump drains a bounded queue and sends pings; a client whose queue fills up
// is disconnected instead of blocking the room.
//
// Usage:
//
//	handler := ws.NewHandlerFromConfig(logger, engine, cfg)
//	mux.Handle(cfg.Server.WSPath, handler)
//	defer handler.Close()
package ws
