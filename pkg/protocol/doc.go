// Package protocol implements the per-connection STOMP session.
//
// An Engine is bound to one connection. The handler calls Start once after
// registering the connection, then Process once per decoded frame, and stops
// when ShouldTerminate reports true or the transport ends. Close releases the
// login on every teardown path.
//
// Session states:
//
//	unauthenticated --CONNECT ok--> authenticated
//	      |                              |
//	      +------ any violation ---------+--> terminated
//	      +------ DISCONNECT ------------+--> terminated
//
// Every protocol violation answers with an ERROR frame (echoing receipt-id
// when the client asked for one) and terminates the session. Process itself
// only fails for caller mistakes, reported as ErrInvalidArgument.
//
// Outbound frames go through a Router, a narrow view of the connection
// registry. *registry.Registry[string] satisfies it.
package protocol
