package session

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/isdmx/coderoom/config"
	"github.com/isdmx/coderoom/presence"
	"github.com/isdmx/coderoom/room"
	"github.com/isdmx/coderoom/sandbox"
)

var (
	// ErrNotJoined is returned for room events from a peer outside the room
	ErrNotJoined = errors.New("not joined to room")

	// ErrUnknownEvent is returned for event names outside the protocol
	ErrUnknownEvent = errors.New("unknown event")

	// ErrPayloadTooLarge is returned when source text exceeds the limit
	ErrPayloadTooLarge = errors.New("code exceeds size limit")

	// ErrNoSuchRun is returned when cancelling a run that already finished
	ErrNoSuchRun = errors.New("no outstanding run")
)

// Output texts of failed runs
const (
	outputErrorPrefix = "Error: "
	outputRunFailed   = "Error: execution failed"
)

// Limits bounds inbound payloads; zero disables a limit
type Limits struct {
	MaxCodeBytes int
	MaxNameLen   int
}

// Stats is a point-in-time view of the engine
type Stats struct {
	Rooms        int `json:"rooms"`
	Participants int `json:"participants"`
	ActiveRuns   int `json:"active_runs"`
}

type member struct {
	peer  Peer
	name  string
	group *group
}

// group is the broadcast group of one room. Its mutex serializes every
// mutation of the room and the fan-out that follows it.
type group struct {
	roomID  string
	mu      sync.Mutex
	members map[string]*member
	closed  bool
}

// Engine routes protocol events from peers to the room store, the cursor
// tracker and the execution dispatcher, and fans results back out to the
// members of each room.
//
// Lock order: Engine.mu, then group.mu, then the store's own lock.
type Engine struct {
	logger   *zap.Logger
	store    *room.Store
	cursors  *presence.Tracker
	runs     Runs
	limits   Limits
	validate *validator.Validate

	mu      sync.Mutex
	groups  map[string]*group
	members map[string]*member
}

// NewEngine creates an Engine over the given collaborators
func NewEngine(logger *zap.Logger, store *room.Store, cursors *presence.Tracker, runs Runs, limits Limits) *Engine {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Engine{
		logger:   logger,
		store:    store,
		cursors:  cursors,
		runs:     runs,
		limits:   limits,
		validate: validate,
		groups:   make(map[string]*group),
		members:  make(map[string]*member),
	}
}

// NewEngineFromConfig creates an Engine with limits from the session section
func NewEngineFromConfig(
	logger *zap.Logger,
	store *room.Store,
	cursors *presence.Tracker,
	runs *sandbox.Dispatcher,
	cfg *config.Config,
) *Engine {
	return NewEngine(logger.Named("session"), store, cursors, runs, Limits{
		MaxCodeBytes: cfg.Session.MaxCodeKB * sandbox.BytesPerKB,
		MaxNameLen:   cfg.Session.MaxNameLen,
	})
}

// Handle processes one inbound envelope. Callers deliver envelopes of one
// peer sequentially, which gives per-connection FIFO processing. Failures
// are answered with an error event to the peer and never escape.
func (e *Engine) Handle(peer Peer, env Envelope) {
	logger := e.logger.With(zap.String("peer_id", peer.ID()), zap.String("event", env.Event))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling event", zap.Any("panic", r), zap.Stack("stack"))
			e.reject(peer, "internal error")
		}
	}()

	if err := e.dispatch(peer, env); err != nil {
		logger.Debug("event rejected", zap.Error(err))
		e.reject(peer, err.Error())
	}
}

//nolint:gocyclo // One case per event
func (e *Engine) dispatch(peer Peer, env Envelope) error {
	switch env.Event {
	case EventJoin, EventJoinRoom:
		var p JoinPayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		e.join(peer, p)
		return nil

	case EventRequestState:
		var p RoomPayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.requestState(peer, p)

	case EventSyncState:
		var p SyncStatePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.syncState(peer, p)

	case EventCodeChange:
		var p CodeChangePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.codeChange(peer, p)

	case EventLanguageChange:
		var p LanguageChangePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.languageChange(peer, p)

	case EventRunCode:
		var p RunCodePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.runCode(peer, p)

	case EventCancelRun:
		var p CancelRunPayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.cancelRun(peer, p)

	case EventCursorUpdate:
		var p CursorUpdatePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		return e.cursorUpdate(peer, p)

	case EventLeaveRoom:
		var p LeavePayload
		if err := e.decode(env, &p); err != nil {
			return err
		}
		e.leave(peer, p.RoomID)
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func (e *Engine) decode(env Envelope, v any) error {
	if err := env.Decode(v); err != nil {
		return err
	}
	if err := e.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid %s payload: field %s failed %s", env.Event, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}
	return nil
}

func (e *Engine) join(peer Peer, p JoinPayload) {
	name := e.displayName(p.Username)

	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.members[peer.ID()]; ok {
		if m.group.roomID == p.RoomID {
			return
		}
		e.leaveLocked(m)
	}

	g, ok := e.groups[p.RoomID]
	if !ok {
		g = &group{roomID: p.RoomID, members: make(map[string]*member)}
		e.groups[p.RoomID] = g
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	m := &member{peer: peer, name: name, group: g}
	e.store.Join(p.RoomID, peer.ID())
	e.broadcastLocked(g, peer.ID(), EventUserJoined, name)
	g.members[peer.ID()] = m
	e.members[peer.ID()] = m

	for id, c := range e.cursors.Snapshot(p.RoomID) {
		if id != peer.ID() {
			e.send(peer, EventCursorUpdate, CursorMessage{User: c.Name, Position: c.Position})
		}
	}

	e.logger.Info("participant joined",
		zap.String("room_id", p.RoomID),
		zap.String("peer_id", peer.ID()),
		zap.String("name", name),
		zap.Int("participants", len(g.members)))
}

// leave detaches peer from roomID; a leave for any other room is ignored
func (e *Engine) leave(peer Peer, roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.members[peer.ID()]; ok && m.group.roomID == roomID {
		e.leaveLocked(m)
	}
}

// Disconnect performs leave semantics for whatever room peer is in
func (e *Engine) Disconnect(peer Peer) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.members[peer.ID()]; ok {
		e.leaveLocked(m)
	}
}

func (e *Engine) leaveLocked(m *member) {
	g := m.group
	id := m.peer.ID()

	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.members, id)
	delete(e.members, id)
	e.store.Leave(g.roomID, id)
	e.cursors.Remove(g.roomID, id)
	e.broadcastLocked(g, "", EventUserLeft, m.name)

	logger := e.logger.With(zap.String("room_id", g.roomID), zap.String("peer_id", id))
	logger.Info("participant left", zap.Int("participants", len(g.members)))

	if len(g.members) > 0 {
		return
	}

	g.closed = true
	delete(e.groups, g.roomID)
	if !e.store.DestroyIfEmpty(g.roomID) {
		logger.Warn("empty room was not destroyed")
	}
	e.cursors.Drop(g.roomID)
	if n := e.runs.CancelRoom(g.roomID); n > 0 {
		logger.Info("cancelled runs of destroyed room", zap.Int("runs", n))
	}
}

// inRoom runs fn with the room's group locked, provided peer is a member
func (e *Engine) inRoom(peer Peer, roomID string, fn func(m *member) error) error {
	e.mu.Lock()
	m, ok := e.members[peer.ID()]
	e.mu.Unlock()

	if !ok || m.group.roomID != roomID {
		return fmt.Errorf("%w: %s", ErrNotJoined, roomID)
	}

	g := m.group
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.members[peer.ID()] != m {
		return fmt.Errorf("%w: %s", ErrNotJoined, roomID)
	}
	return fn(m)
}

func (e *Engine) requestState(peer Peer, p RoomPayload) error {
	return e.inRoom(peer, p.RoomID, func(*member) error {
		st, err := e.store.Get(p.RoomID)
		if errors.Is(err, room.ErrRoomNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		e.send(peer, EventSyncState, StateMessage{Lang: string(st.Language), Code: st.Source})
		return nil
	})
}

func (e *Engine) syncState(peer Peer, p SyncStatePayload) error {
	if err := e.checkCode(p.Code); err != nil {
		return err
	}
	lang, err := room.ParseLanguage(p.Lang)
	if err != nil {
		return err
	}

	return e.inRoom(peer, p.RoomID, func(m *member) error {
		if err := e.store.SetState(p.RoomID, lang, p.Code); err != nil {
			return err
		}
		e.broadcastLocked(m.group, peer.ID(), EventSyncState, StateMessage{Lang: string(lang), Code: p.Code})
		return nil
	})
}

func (e *Engine) codeChange(peer Peer, p CodeChangePayload) error {
	if err := e.checkCode(p.Code); err != nil {
		return err
	}

	return e.inRoom(peer, p.RoomID, func(m *member) error {
		if err := e.store.SetSource(p.RoomID, p.Code); err != nil {
			return err
		}
		e.broadcastLocked(m.group, peer.ID(), EventCodeChange, CodeMessage{Code: p.Code})
		return nil
	})
}

func (e *Engine) languageChange(peer Peer, p LanguageChangePayload) error {
	lang, err := room.ParseLanguage(p.Lang)
	if err != nil {
		return err
	}

	return e.inRoom(peer, p.RoomID, func(m *member) error {
		st, err := e.store.SetLanguage(p.RoomID, lang)
		if err != nil {
			return err
		}
		e.broadcastLocked(m.group, peer.ID(), EventLanguageChange, LanguageMessage{Lang: string(st.Language), Code: st.Source})
		return nil
	})
}

func (e *Engine) runCode(peer Peer, p RunCodePayload) error {
	if err := e.checkCode(p.Code); err != nil {
		return err
	}

	return e.inRoom(peer, p.RoomID, func(m *member) error {
		if _, err := room.ParseLanguage(p.Language); err != nil {
			unsupported := &sandbox.UnsupportedLanguageError{Language: p.Language}
			e.send(peer, EventCodeOutput, OutputMessage{Output: outputErrorPrefix + unsupported.Error()})
			return nil
		}

		req := sandbox.Request{Language: p.Language, Source: p.Code}
		taskID, err := e.runs.Submit(p.RoomID, req, e.runDone(m.group, peer))
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}

		e.broadcastLocked(m.group, "", EventRunStarted, RunStartedMessage{TaskID: string(taskID), User: m.name})
		return nil
	})
}

// runDone delivers the outcome of a run to the room it was started in.
// Results of a room that has been destroyed meanwhile are dropped.
func (e *Engine) runDone(g *group, requester Peer) sandbox.Done {
	return func(taskID sandbox.TaskID, res sandbox.Result, err error) {
		msg := OutputMessage{Output: res.Output, Success: res.Success, TaskID: string(taskID)}
		if err != nil {
			if errors.Is(err, sandbox.ErrUnsupportedLanguage) {
				msg.Output = outputErrorPrefix + err.Error()
				e.send(requester, EventCodeOutput, msg)
				return
			}
			e.logger.Error("run failed",
				zap.String("room_id", g.roomID),
				zap.String("task_id", string(taskID)),
				zap.Error(err))
			msg.Output = outputRunFailed
		}

		g.mu.Lock()
		defer g.mu.Unlock()

		if g.closed {
			return
		}
		e.broadcastLocked(g, "", EventCodeOutput, msg)
	}
}

func (e *Engine) cancelRun(peer Peer, p CancelRunPayload) error {
	return e.inRoom(peer, p.RoomID, func(*member) error {
		if !e.runs.Cancel(p.RoomID, sandbox.TaskID(p.TaskID)) {
			return fmt.Errorf("%w: %s", ErrNoSuchRun, p.TaskID)
		}
		return nil
	})
}

func (e *Engine) cursorUpdate(peer Peer, p CursorUpdatePayload) error {
	if p.Position.Line < 1 || p.Position.Column < 0 {
		return fmt.Errorf("invalid cursor position %d:%d", p.Position.Line, p.Position.Column)
	}

	return e.inRoom(peer, p.RoomID, func(m *member) error {
		name := m.name
		if strings.TrimSpace(p.User) != "" {
			name = e.displayName(p.User)
		}
		e.cursors.Update(p.RoomID, peer.ID(), name, *p.Position)
		e.broadcastLocked(m.group, peer.ID(), EventCursorUpdate, CursorMessage{User: name, Position: *p.Position})
		return nil
	})
}

func (e *Engine) checkCode(code string) error {
	if e.limits.MaxCodeBytes > 0 && len(code) > e.limits.MaxCodeBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(code), e.limits.MaxCodeBytes)
	}
	return nil
}

func (e *Engine) displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return AnonymousName
	}
	if e.limits.MaxNameLen > 0 && utf8.RuneCountInString(name) > e.limits.MaxNameLen {
		name = string([]rune(name)[:e.limits.MaxNameLen])
	}
	return name
}

// broadcastLocked sends to every member of g except exceptID; g.mu is held
func (e *Engine) broadcastLocked(g *group, exceptID, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		e.logger.Error("failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	for id, m := range g.members {
		if id != exceptID {
			e.deliver(m.peer, env)
		}
	}
}

func (e *Engine) send(peer Peer, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		e.logger.Error("failed to encode message", zap.String("event", event), zap.Error(err))
		return
	}
	e.deliver(peer, env)
}

func (e *Engine) deliver(peer Peer, env Envelope) {
	if err := peer.Send(env); err != nil {
		e.logger.Debug("failed to deliver event",
			zap.String("peer_id", peer.ID()),
			zap.String("event", env.Event),
			zap.Error(err))
	}
}

func (e *Engine) reject(peer Peer, message string) {
	e.send(peer, EventError, ErrorMessage{Message: message})
}

// Rooms lists the live rooms
func (e *Engine) Rooms() []room.Summary {
	return e.store.List()
}

// State returns the current state of a live room
func (e *Engine) State(roomID string) (room.State, error) {
	return e.store.Get(roomID)
}

// Stats returns room, participant and run counts
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	participants := len(e.members)
	e.mu.Unlock()

	return Stats{
		Rooms:        e.store.Len(),
		Participants: participants,
		ActiveRuns:   e.runs.Active(),
	}
}
