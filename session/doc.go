// Package session implements the collaboration protocol.
//
// An Engine receives protocol envelopes from peers, applies them to the room
// store and the cursor tracker, and fans the resulting events out to the
// other members of the room. Every mutation of a room and its fan-out happen
// under that room's lock, so all members observe room events in the order
// the store applied them. Rooms are created by the first join and destroyed,
// together with their cursors and outstanding runs, when the last member
// leaves or disconnects.
//
// Runs are submitted to a dispatcher and reported asynchronously: the room
// first sees runStarted, then codeOutput with the same task id. Output of a
// rejected language goes to the requester only.
//
// Concurrent edits are not merged. Whole-document overwrites from different
// peers race and the last one applied wins.
package session
