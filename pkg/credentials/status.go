package credentials

// LoginStatus is the outcome of Store.Login.
type LoginStatus int

// Login outcomes. Only NewUserCreated and LoggedInOK admit the connection.
const (
	NewUserCreated LoginStatus = iota + 1
	LoggedInOK
	WrongPassword
	AlreadyLoggedInElsewhere
	ConnectionAlreadyAssociated
)

// OK reports whether the status admits the connection.
func (s LoginStatus) OK() bool {
	return s == NewUserCreated || s == LoggedInOK
}

func (s LoginStatus) String() string {
	switch s {
	case NewUserCreated:
		return "new_user_created"
	case LoggedInOK:
		return "logged_in"
	case WrongPassword:
		return "wrong_password"
	case AlreadyLoggedInElsewhere:
		return "already_logged_in"
	case ConnectionAlreadyAssociated:
		return "connection_already_associated"
	default:
		return "unknown"
	}
}
