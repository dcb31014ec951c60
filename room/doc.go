// Package room provides the authoritative in-memory state of collaborative rooms.
//
// A room is created lazily on first join with the default language (C) and
// its boilerplate, and is destroyed when its last participant leaves. Every
// mutation overwrites whole values under the store lock, so concurrent
// writers converge on the last write. Switching language resets the source
// to the new language's boilerplate.
//
// Usage:
//
//	store := room.NewStore(logger, room.DefaultBoilerplates())
//	store.Join("r1", "alice")
//	_ = store.SetSource("r1", "int main() {}")
//	state, err := store.Get("r1")
package room
