// Package config provides application configuration management.
//
// The config package loads the collaboration server's configuration from an
// optional YAML file, CODEROOM_-prefixed environment variables and a .env file,
// on top of built-in defaults. It covers the HTTP/WebSocket listener, the
// execution sandbox, per-language toolchains and boilerplates, protocol limits,
// logging and the optional MCP operator endpoint.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s\n", cfg.ListenAddr())
package config
