package gateway

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeMissingCredential  = "MISSING_CREDENTIAL"
	TextCodeTokenMalformed     = "MALFORMED_TOKEN"
	TextCodeTokenExpired       = "EXPIRED_TOKEN"
	TextCodeBadSignature       = "BAD_SIGNATURE"
	TextCodeTokenRevoked       = "REVOKED"
	TextCodeSessionInvalidated = "SESSION_INVALIDATED"
	TextCodeAccountLocked      = "ACCOUNT_LOCKED"
	TextCodeAccountDisabled    = "ACCOUNT_DISABLED"
	TextCodePlanDenied         = "PLAN_DENIED"
	TextCodeBillingRequired    = "BILLING_REQUIRED"
	TextCodeAuthUnavailable    = "AUTH_DB_UNAVAILABLE"
	TextCodeInvalidLockChange  = "INVALID_LOCK_TRANSITION"
)

// ErrMissingCredential is returned when no resolution strategy applies.
var ErrMissingCredential = errors.New("no credential presented", errors.CategoryAuth).
	WithTextCode(TextCodeMissingCredential).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens with the wrong structural shape.
// Clients should clear their stored token and authenticate again.
var ErrTokenMalformed = errors.New("malformed session token", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized).
	WithMetadata(map[string]any{
		"hint": "clear your stored token and sign in again",
	})

// ErrTokenExpired is returned when a token's expiry has passed.
var ErrTokenExpired = errors.New("session token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrBadSignature is returned when a token fails signature verification.
var ErrBadSignature = errors.New("session token signature invalid", errors.CategoryAuth).
	WithTextCode(TextCodeBadSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenRevoked is returned when a token's id appears in the revocation set.
var ErrTokenRevoked = errors.New("session token revoked", errors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(errors.CodeUnauthorized)

// ErrSessionInvalidated is returned when a token's session epoch no longer
// matches the account. Distinct from expiry so clients can tell "log in
// again" apart from "your token is stale".
var ErrSessionInvalidated = errors.New("session invalidated", errors.CategoryAuth).
	WithTextCode(TextCodeSessionInvalidated).
	WithCode(errors.CodeUnauthorized)

// ErrAccountLocked is returned while an account lock is in force.
var ErrAccountLocked = errors.New("account restricted", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountLocked).
	WithCode(errors.CodeForbidden)

// ErrAccountDisabled is returned for accounts with a disabled status.
var ErrAccountDisabled = errors.New("account disabled", errors.CategoryAuthz).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(errors.CodeForbidden)

// ErrPlanDenied is returned when an account's plan does not entitle access.
var ErrPlanDenied = errors.New("plan does not permit access", errors.CategoryAuthz).
	WithTextCode(TextCodePlanDenied).
	WithCode(errors.CodeForbidden)

// ErrBillingRequired is returned when the subscription no longer entitles
// access. Maps to 402 at the HTTP edge.
var ErrBillingRequired = errors.New("billing required", errors.CategoryAuthz).
	WithTextCode(TextCodeBillingRequired).
	WithCode(errors.CodeForbidden)

// ErrAuthStoreUnavailable is returned when a core store cannot be reached or
// fails in an unexpected way. Maps to 503 at the HTTP edge.
var ErrAuthStoreUnavailable = errors.New("auth subsystem unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeAuthUnavailable).
	WithCode(errors.CodeInternal)

// ErrInvalidLockTransition is returned for admin lock changes the transition
// table does not allow.
var ErrInvalidLockTransition = errors.New("invalid lock state transition", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidLockChange).
	WithCode(errors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsUnavailableError reports whether err is the fatal "auth subsystem
// unavailable" condition.
func IsUnavailableError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == TextCodeAuthUnavailable
}

// IsStoreMissingError classifies driver errors that mean the backing table
// was never provisioned, as opposed to the store being broken. Only the
// revocation checker is allowed to fail open on this condition.
func IsStoreMissingError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || // sqlite
		strings.Contains(msg, "undefined table") || // postgres
		strings.Contains(msg, "sqlstate 42p01") || // postgres, wrapped
		strings.Contains(msg, "doesn't exist") // mysql
}

// TextCodeOf extracts the gateway text code from an error, or "".
func TextCodeOf(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
