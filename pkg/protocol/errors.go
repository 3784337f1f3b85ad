package protocol

// Error is a simple error type for protocol errors.
// It allows defining sentinel errors as constants.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

// ErrInvalidArgument reports a broken caller contract: a nil collaborator,
// a second Start, or a Process call before Start or after termination.
const ErrInvalidArgument = Error("invalid argument")
