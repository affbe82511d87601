package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("auth: not found")
	ErrInvalidCredentials   = errors.New("auth: invalid credentials")
	ErrAccountNotActive     = errors.New("auth: account not active")
	ErrDuplicateUsername    = errors.New("auth: username already taken")
	ErrTokenExpired         = errors.New("auth: token expired")
	ErrTokenMalformed       = errors.New("auth: token malformed")
	ErrTokenPurposeMismatch = errors.New("auth: token purpose mismatch")
	ErrUnauthenticated      = errors.New("auth: unauthenticated")
	ErrForbidden            = errors.New("auth: forbidden")
	ErrStoreUnavailable     = errors.New("auth: store unavailable")
	ErrInvalidInput         = errors.New("auth: invalid input")
)

// ForbiddenError carries the role gap for display. Access decisions never
// happen client-side; the detail is UX only.
type ForbiddenError struct {
	Required Role
	Actual   Role
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("auth: forbidden: requires %s, have %s", e.Required, roleLabel(e.Actual))
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func roleLabel(r Role) string {
	if r == RoleNone {
		return "none"
	}
	return string(r)
}
