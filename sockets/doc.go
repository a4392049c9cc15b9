// Package sockets keeps the live Socket.IO connections of the console, one
// per namespace, together with an append-only message history for each
// namespace.
//
// A namespace moves through three states: absent, connecting and
// connected. AddSocket is the only way in; a disconnect, a transport error
// or RemoveSocket always takes it back to absent, so reconnecting starts
// from scratch:
//
//	reg := sockets.NewRegistry(sockets.WithLogger(logger))
//
//	if err := reg.AddSocket("/chat", transport); err != nil {
//	    return err
//	}
//
//	// later, once connected
//	err := reg.Emit("/chat", "message", map[string]any{"text": "hi"})
//
// Transport callbacks may arrive at any time, including after the
// namespace was removed or re-added. Every callback is bound to the record
// it was installed for and is ignored once that record is gone.
//
// The registry never hands out mutable state. Readers receive snapshots
// that stay valid and unchanged while writers publish new ones.
package sockets
