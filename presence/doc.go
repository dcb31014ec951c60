// Package presence tracks the last known cursor position of each participant.
//
// Positions are broadcast to the other members of a room as they arrive and
// are forgotten when a participant leaves. They are never persisted.
package presence
