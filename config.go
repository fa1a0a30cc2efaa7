package gateway

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Default configuration values.
const (
	DefaultCookieName      = "dealbase_session"
	DefaultAuthScheme      = "Bearer"
	DefaultContextKey      = "identity"
	DefaultTokenExpiration = 24 // hours
)

// GatewayConfig is a concrete Config suitable for loading from app config.
type GatewayConfig struct {
	SigningKey      string          `json:"signing_key"`
	SigningMethod   string          `json:"signing_method"`
	Issuer          string          `json:"issuer"`
	Audience        []string        `json:"audience"`
	CookieName      string          `json:"cookie_name"`
	AuthScheme      string          `json:"auth_scheme"`
	ContextKey      string          `json:"context_key"`
	TokenExpiration int             `json:"token_expiration"`
	CacheTTL        time.Duration   `json:"cache_ttl"`
	DevBypass       DevBypassConfig `json:"dev_bypass"`
}

// Validate will run validation rules
func (c GatewayConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.SigningMethod, validation.In("HS256", "HS384", "HS512", "")),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.TokenExpiration, validation.Min(0)),
	)
}

func (c GatewayConfig) GetSigningKey() string {
	return c.SigningKey
}

func (c GatewayConfig) GetSigningMethod() string {
	if c.SigningMethod == "" {
		return "HS256"
	}
	return c.SigningMethod
}

func (c GatewayConfig) GetIssuer() string {
	return c.Issuer
}

func (c GatewayConfig) GetAudience() []string {
	return c.Audience
}

func (c GatewayConfig) GetCookieName() string {
	if c.CookieName == "" {
		return DefaultCookieName
	}
	return c.CookieName
}

func (c GatewayConfig) GetAuthScheme() string {
	if c.AuthScheme == "" {
		return DefaultAuthScheme
	}
	return c.AuthScheme
}

func (c GatewayConfig) GetContextKey() string {
	if c.ContextKey == "" {
		return DefaultContextKey
	}
	return c.ContextKey
}

// GetTokenExpiration returns the token lifetime in hours.
func (c GatewayConfig) GetTokenExpiration() int {
	if c.TokenExpiration == 0 {
		return DefaultTokenExpiration
	}
	return c.TokenExpiration
}

func (c GatewayConfig) GetCacheTTL() time.Duration {
	if c.CacheTTL == 0 {
		return DefaultCacheTTL
	}
	return c.CacheTTL
}

func (c GatewayConfig) GetDevBypass() DevBypassConfig {
	return c.DevBypass
}

var _ Config = GatewayConfig{}
