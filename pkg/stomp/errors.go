package stomp

// codecError is a constant error type for codec failures.
type codecError string

func (e codecError) Error() string { return string(e) }

var (
	// ErrMalformedHeader is returned by Parse when a header line has no colon
	// or an empty name.
	ErrMalformedHeader = codecError("malformed header line")

	// ErrFrameTooLarge is returned by the Decoder when a frame grows past the
	// configured limit before its terminator arrives.
	ErrFrameTooLarge = codecError("frame exceeds maximum size")
)
