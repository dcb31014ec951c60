package presence

import (
	"sync"
)

// Position is a cursor location: Line is 1-indexed, Column is the offset
// from the last newline.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Cursor is the last known position of one participant
type Cursor struct {
	Name     string   `json:"user"`
	Position Position `json:"position"`
}

// Tracker keeps the last cursor position of every participant per room.
// Updates overwrite; nothing is ordered or merged.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Cursor
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]map[string]Cursor)}
}

// Update records the position of participantID in roomID
func (t *Tracker) Update(roomID, participantID, name string, pos Position) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cursors, ok := t.rooms[roomID]
	if !ok {
		cursors = make(map[string]Cursor)
		t.rooms[roomID] = cursors
	}
	cursors[participantID] = Cursor{Name: name, Position: pos}
}

// Remove forgets participantID's cursor in roomID
func (t *Tracker) Remove(roomID, participantID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cursors, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(cursors, participantID)
	if len(cursors) == 0 {
		delete(t.rooms, roomID)
	}
}

// Drop forgets every cursor of roomID
func (t *Tracker) Drop(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, roomID)
}

// Snapshot returns a copy of the cursors in roomID keyed by participant ID
func (t *Tracker) Snapshot(roomID string) map[string]Cursor {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cursors := t.rooms[roomID]
	out := make(map[string]Cursor, len(cursors))
	for id, c := range cursors {
		out[id] = c
	}
	return out
}
