package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Claims holds the verified attributes of a session token.
type Claims interface {
	AccountID() string
	AccountUUID() (uuid.UUID, error)
	OrgID() string
	SessionEpoch() int64
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenService signs and validates session tokens.
type TokenService interface {
	TokenValidator
	Sign(claims *SessionClaims) (string, error)
}

// Config holds gateway options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetIssuer() string
	GetAudience() []string
	GetCookieName() string
	GetAuthScheme() string
	GetContextKey() string
	GetTokenExpiration() int
	GetCacheTTL() time.Duration
	GetDevBypass() DevBypassConfig
}

// BillingFlags surfaces non-blocking billing conditions to route handlers so
// the UI can warn without the gateway denying the request.
type BillingFlags struct {
	IsPastDue         bool `json:"is_past_due,omitempty"`
	CancelAtPeriodEnd bool `json:"cancel_at_period_end,omitempty"`
}

// ResolvedIdentity is the product of a successful resolution. It is built
// fresh per request and never persisted.
type ResolvedIdentity struct {
	AccountID    uuid.UUID    `json:"account_id"`
	OrgID        string       `json:"org_id,omitempty"`
	Plan         Plan         `json:"plan,omitempty"`
	BillingFlags BillingFlags `json:"billing_flags,omitempty"`
	Strategy     string       `json:"-"`
}

// BillingRefresher pulls authoritative subscription state from the billing
// provider. The gateway only consults it for read-repair, when a record is
// missing its period-end field.
type BillingRefresher interface {
	Refresh(ctx context.Context, record *BillingRecord) (*BillingRecord, error)
}

// BillingRefresherFunc adapts a function into a BillingRefresher.
type BillingRefresherFunc func(ctx context.Context, record *BillingRecord) (*BillingRecord, error)

// Refresh satisfies the BillingRefresher interface.
func (f BillingRefresherFunc) Refresh(ctx context.Context, record *BillingRecord) (*BillingRecord, error) {
	if f == nil {
		return record, nil
	}
	return f(ctx, record)
}

// DefaultLogger returns the fallback printf logger used when no logger is
// configured.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GATEWAY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GATEWAY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GATEWAY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GATEWAY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
