//go:generate go run go.uber.org/mock/mockgen -source=peer.go -destination=../mocks/mock_peer.go -package=mocks
package session

import (
	"github.com/isdmx/coderoom/sandbox"
)

// Peer is one connected participant as seen by the Engine. Send must not
// block; transports queue the envelope and drop peers that fall behind.
type Peer interface {
	ID() string
	Send(env Envelope) error
}

// Runs schedules executions; *sandbox.Dispatcher implements it
type Runs interface {
	Submit(roomID string, req sandbox.Request, done sandbox.Done) (sandbox.TaskID, error)
	Cancel(roomID string, taskID sandbox.TaskID) bool
	CancelRoom(roomID string) int
	Active() int
}
