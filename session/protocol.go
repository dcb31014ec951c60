package session

import (
	"encoding/json"
	"fmt"

	"github.com/isdmx/coderoom/presence"
)

// Event names of the wire protocol
const (
	EventJoin           = "join"
	EventJoinRoom       = "joinRoom"
	EventRequestState   = "requestState"
	EventSyncState      = "syncState"
	EventCodeChange     = "codeChange"
	EventLanguageChange = "languageChange"
	EventRunCode        = "runCode"
	EventCancelRun      = "cancelRun"
	EventCursorUpdate   = "cursorUpdate"
	EventLeaveRoom      = "leaveRoom"

	EventCodeOutput = "codeOutput"
	EventRunStarted = "runStarted"
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventError      = "error"
)

// AnonymousName is used for participants joining without a display name
const AnonymousName = "Anonymous"

// Envelope is one protocol frame: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes data into an Envelope for event
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the envelope data into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("missing %s payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", e.Event, err)
	}
	return nil
}

// Inbound payloads

type JoinPayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	Username string `json:"username"`
}

type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type SyncStatePayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Lang   string `json:"lang" validate:"required"`
	Code   string `json:"code"`
}

type CodeChangePayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Code   string `json:"code"`
}

type LanguageChangePayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	Lang   string `json:"lang" validate:"required"`
}

type RunCodePayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	Code     string `json:"code"`
	Language string `json:"language" validate:"required"`
}

type CancelRunPayload struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
	TaskID string `json:"taskId" validate:"required,uuid"`
}

type CursorUpdatePayload struct {
	RoomID   string             `json:"roomId" validate:"required,max=128"`
	User     string             `json:"user"`
	Position *presence.Position `json:"position" validate:"required"`
}

type LeavePayload struct {
	RoomID   string `json:"roomId" validate:"required,max=128"`
	Username string `json:"username"`
}

// Outbound payloads

type StateMessage struct {
	Lang string `json:"lang"`
	Code string `json:"code"`
}

type CodeMessage struct {
	Code string `json:"code"`
}

// LanguageMessage carries the boilerplate the room was reset to
type LanguageMessage struct {
	Lang string `json:"lang"`
	Code string `json:"code"`
}

type OutputMessage struct {
	Output  string `json:"output"`
	Success bool   `json:"success"`
	TaskID  string `json:"taskId,omitempty"`
}

type RunStartedMessage struct {
	TaskID string `json:"taskId"`
	User   string `json:"user"`
}

type CursorMessage struct {
	User     string            `json:"user"`
	Position presence.Position `json:"position"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}
