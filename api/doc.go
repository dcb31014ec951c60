// Package api serves the small HTTP surface next to the collaboration
// endpoint: health, stats, the list of live rooms, the state of one room and
// fresh room IDs for clients that want to open a new room.
package api
