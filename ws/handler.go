package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/config"
	"github.com/isdmx/coderoom/ratelimit"
	"github.com/isdmx/coderoom/sandbox"
	"github.com/isdmx/coderoom/session"
)

// maxViolations is the number of rate-limited messages after which a
// client is disconnected
const maxViolations = 1000

// Engine consumes the events of connected clients
type Engine interface {
	Handle(peer session.Peer, env session.Envelope)
	Disconnect(peer session.Peer)
}

// Options tune the transport
type Options struct {
	AllowedOrigins  []string
	MaxMessageBytes int64
	SendBuffer      int
}

// Handler upgrades HTTP requests to WebSocket connections and feeds their
// messages to the Engine.
type Handler struct {
	logger   *zap.Logger
	engine   Engine
	limiters *ratelimit.ClientLimiters
	opts     Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// NewHandler creates a Handler. limiters is owned by the Handler and
// stopped by Close.
func NewHandler(logger *zap.Logger, engine Engine, limiters *ratelimit.ClientLimiters, opts Options) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}

	h := &Handler{
		logger:   logger,
		engine:   engine,
		limiters: limiters,
		opts:     opts,
		clients:  make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// NewHandlerFromConfig creates a Handler from the server section
func NewHandlerFromConfig(logger *zap.Logger, engine *session.Engine, cfg *config.Config) *Handler {
	return NewHandler(
		logger.Named("ws"),
		engine,
		ratelimit.NewClientLimiters(cfg.Server.MessagesPerSecond, cfg.Server.MessageBurst),
		Options{
			AllowedOrigins:  cfg.Server.AllowedOrigins,
			MaxMessageBytes: int64(cfg.Server.MaxMessageKB) * sandbox.BytesPerKB,
			SendBuffer:      cfg.Server.SendBuffer,
		},
	)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || lo.Contains(h.opts.AllowedOrigins, "*") {
		return true
	}
	return lo.Contains(h.opts.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and runs the connection until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newClient(h.logger, uuid.NewString(), conn, h.opts.SendBuffer)

	h.mu.Lock()
	h.clients[c.id] = c
	h.wg.Add(1)
	h.mu.Unlock()

	c.logger.Info("client connected", zap.String("remote_addr", r.RemoteAddr))

	go c.writePump()
	go func() {
		defer h.wg.Done()
		h.readPump(c)
	}()
}

func (h *Handler) readPump(c *Client) {
	defer func() {
		h.engine.Disconnect(c)
		h.limiters.Remove(c.id)
		h.forget(c)
		c.close()
		c.logger.Info("client disconnected")
	}()

	if h.opts.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(h.opts.MaxMessageBytes)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := h.limiters.Get(c.id)
	violations := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if !limiter.Allow() {
			violations++
			if violations%100 == 1 {
				c.logger.Warn("rate limit exceeded", zap.Int("violations", violations))
			}
			if violations > maxViolations {
				c.logger.Warn("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		var env session.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			h.reject(c, "malformed message")
			continue
		}

		h.engine.Handle(c, env)
	}
}

func (h *Handler) reject(c *Client, message string) {
	env, err := session.NewEnvelope(session.EventError, session.ErrorMessage{Message: message})
	if err == nil {
		_ = c.Send(env)
	}
}

func (h *Handler) forget(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// Clients returns the number of open connections
func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and waits for their read loops to finish
func (h *Handler) Close() {
	h.mu.Lock()
	clients := lo.Values(h.clients)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.wg.Wait()
	h.limiters.Stop()
}
