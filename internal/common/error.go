// Package common defines shared constants and sentinel errors used across the
// itemshare server. Callers should use errors.Is to match these values: every
// failure the sharing engine reports carries exactly one of the kinds below.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed covers bad credentials and unusable tokens.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrAuthorizationDenied means the identity is valid but lacks rights on
	// the item or claim.
	ErrAuthorizationDenied = errors.New("authorization denied")

	// Repository-level errors.
	ErrNotFound      = errors.New("not found")
	ErrDuplicateUser = errors.New("user already exists")

	// Lifecycle errors.
	ErrItemUnavailable   = errors.New("item unavailable")
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrVersionConflict is returned when an optimistic write lost a race.
	// It is the only kind where an immediate retry may succeed.
	ErrVersionConflict = errors.New("version conflict")

	ErrValidation = errors.New("validation error")
	ErrInternal   = errors.New("internal error")
)

// Token failures. Each one is also an ErrAuthenticationFailed.
var (
	ErrTokenExpired        = fmt.Errorf("%w: token expired", ErrAuthenticationFailed)
	ErrTokenMalformed      = fmt.Errorf("%w: token malformed", ErrAuthenticationFailed)
	ErrTokenBadSignature   = fmt.Errorf("%w: token signature invalid", ErrAuthenticationFailed)
	ErrRefreshTokenExpired = fmt.Errorf("%w: refresh token expired", ErrAuthenticationFailed)
)

// Retryable reports whether the caller may retry the failed operation as is.
func Retryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
