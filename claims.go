package gateway

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims is the concrete implementation of Claims. The account id
// travels as the registered subject, the token id as jti, and the org and
// session epoch as private claims.
type SessionClaims struct {
	jwt.RegisteredClaims
	Org   string `json:"org,omitempty"`
	Epoch int64  `json:"epoch"`
}

// Verify interface compliance
var _ Claims = (*SessionClaims)(nil)

// AccountID returns the subject claim.
func (c *SessionClaims) AccountID() string {
	return c.RegisteredClaims.Subject
}

// AccountUUID parses the subject claim into a uuid.
func (c *SessionClaims) AccountUUID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// OrgID returns the org claim.
func (c *SessionClaims) OrgID() string {
	return c.Org
}

// SessionEpoch returns the epoch the token was issued under.
func (c *SessionClaims) SessionEpoch() int64 {
	return c.Epoch
}

// TokenID returns the jti claim.
func (c *SessionClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
