// Package server runs client connections for the broker.
//
// A Server accepts TCP connections (NUL-terminated frames) and, through
// WebSocketHandler, WebSocket connections (one frame per text message). For
// each connection it registers a sender with the registry, starts a fresh
// protocol engine and feeds it decoded frames until the engine terminates or
// the transport ends. Teardown runs exactly once on every path: engine
// Close, registry Disconnect, transport Close.
//
// Two scheduling strategies share that contract:
//
//   - ThreadPerClient reads and processes on one goroutine per connection.
//   - Reactor keeps a goroutine parked on each connection's reads but runs
//     all protocol processing on a fixed worker pool. Frames of a connection
//     go through its actor queue, so they run in order and one at a time.
//
// Writes to a connection are serialized by a per-connection mutex because
// any engine may publish to it.
package server
