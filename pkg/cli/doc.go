// Package cli provides the stompd command-line interface:
//   - serve: run the broker on a TCP port with the tpc or reactor strategy,
//     plus the optional WebSocket and admin listeners
//   - hash-password: print a bcrypt hash for the users file
//   - version: show build information
package cli
