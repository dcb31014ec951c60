package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/api"
	"github.com/isdmx/coderoom/config"
	"github.com/isdmx/coderoom/logger"
	"github.com/isdmx/coderoom/mcpserver"
	"github.com/isdmx/coderoom/presence"
	"github.com/isdmx/coderoom/room"
	"github.com/isdmx/coderoom/sandbox"
	"github.com/isdmx/coderoom/session"
	"github.com/isdmx/coderoom/ws"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Shared room state and cursors
			room.NewStoreFromConfig,
			presence.NewTracker,

			// Sandbox executor based on config, behind the bounded dispatcher
			sandbox.NewExecutor,
			sandbox.NewDispatcherFromConfig,

			// Protocol engine and its transports
			session.NewEngineFromConfig,
			ws.NewHandlerFromConfig,
			newAPI,
			newHTTPServer,

			// MCP Server
			newMCPServer,
		),

		fx.Invoke(
			registerHTTPServer,
			registerMCPServer,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

func newAPI(log *zap.Logger, cfg *config.Config, engine *session.Engine, handler *ws.Handler) *api.API {
	return api.New(log.Named("api"), engine, handler, cfg.Server.AllowedOrigins)
}

func newHTTPServer(cfg *config.Config, handler *ws.Handler, a *api.API) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WSPath, handler)
	a.Register(mux)

	return &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.CORS(mux),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func newMCPServer(cfg *config.Config, log *zap.Logger, engine *session.Engine, executor sandbox.Executor) (*mcpserver.MCPServer, error) {
	return mcpserver.New(cfg, log.Named("mcp"), engine, executor)
}

// registerHTTPServer serves the collaboration endpoint and the API. On stop
// the listener closes first, then open connections, then outstanding runs.
func registerHTTPServer(
	lc fx.Lifecycle,
	log *zap.Logger,
	cfg *config.Config,
	srv *http.Server,
	handler *ws.Handler,
	dispatcher *sandbox.Dispatcher,
) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("collaboration server listening",
				zap.String("addr", ln.Addr().String()),
				zap.String("ws_path", cfg.Server.WSPath),
				zap.String("sandbox.backend", cfg.Sandbox.Backend))

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := srv.Shutdown(ctx)
			handler.Close()
			dispatcher.Close()
			_ = log.Sync()
			return err
		},
	})
}

func registerMCPServer(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, server *mcpserver.MCPServer) {
	if !cfg.MCP.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := server.ServeHTTP(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("mcp server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: server.Shutdown,
	})
}
