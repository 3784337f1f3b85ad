package credentials

// Error is a constant error type for credential failures.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrUserNotFound is returned by a UserRepository for an unknown username.
	ErrUserNotFound = Error("user not found")

	// ErrUserExists is returned by UserRepository.Create when the username is
	// already taken.
	ErrUserExists = Error("user already exists")

	// ErrInvalidAccount is returned by Seed for an entry without a username or
	// without any password.
	ErrInvalidAccount = Error("invalid account")
)
