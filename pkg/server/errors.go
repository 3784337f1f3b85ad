package server

// Error is a constant error type for server failures.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrInvalidArgument is returned for nil collaborators.
	ErrInvalidArgument = Error("invalid argument")

	// ErrAlreadyServing is returned by Serve when the server is already
	// accepting connections.
	ErrAlreadyServing = Error("server is already serving")

	// ErrConnectionClosed is returned when writing to a torn down connection.
	ErrConnectionClosed = Error("connection closed")
)
