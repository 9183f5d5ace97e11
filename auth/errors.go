package auth

import "fmt"

// Error is a typed authentication/authorization failure. Code follows HTTP
// status conventions so transport layers can map it directly.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

var (
	ErrUnknownGroup       = &Error{"UNKNOWN_GROUP", "Group does not exist", 400}
	ErrMissingToken       = &Error{"MISSING_TOKEN", "Authorization header required", 401}
	ErrInvalidToken       = &Error{"INVALID_TOKEN", "Invalid or expired token", 401}
	ErrInvalidCredentials = &Error{"INVALID_CREDENTIALS", "Invalid username or password", 401}
	ErrUserInactive       = &Error{"USER_INACTIVE", "User account inactive", 401}
)

// NewError creates a typed auth error.
func NewError(errorType, message string, code int) *Error {
	return &Error{Type: errorType, Message: message, Code: code}
}
