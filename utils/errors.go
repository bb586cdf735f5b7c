package utils

// AuthError means the caller may not perform the request. Forbidden
// distinguishes an authenticated but under-privileged caller (403) from a
// missing or invalid credential (401).
type AuthError struct {
	Reason    string
	Forbidden bool
}

func (e *AuthError) Error() string {
	return e.Reason
}

func Unauthorized(reason string) *AuthError {
	return &AuthError{Reason: reason}
}

func Forbidden(reason string) *AuthError {
	return &AuthError{Reason: reason, Forbidden: true}
}
