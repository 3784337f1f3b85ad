package registry

// Error is a constant error type for registry contract violations.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// ErrInvalidArgument is returned when a caller passes input the registry
// cannot act on: a nil sender, an unregistered connection, an empty channel.
const ErrInvalidArgument = Error("invalid argument")
