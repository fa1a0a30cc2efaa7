package gateway

import (
	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenValidator validates tokens and extracts claims without tying callers
// to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (Claims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (Claims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (Claims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds.
// It treats ErrTokenMalformed as "try next" and returns the last malformed
// error if all validators fail.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (Claims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsMalformedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// JWKSValidator validates tokens signed by an external identity provider
// against its published JWK set. Accounts keep the provider subject, so
// externally issued tokens resolve through the same pipeline.
type JWKSValidator struct {
	keyfunc jwt.Keyfunc
	issuer  string
	logger  Logger
}

// NewJWKSValidator fetches the JWK sets at the given URLs and returns a
// validator backed by them. The key set refreshes in the background.
func NewJWKSValidator(issuer string, jwksURLs []string, logger Logger) (*JWKSValidator, error) {
	if logger == nil {
		logger = defLogger{}
	}

	opts := keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("background JWK set refresh failed: %v", err)
		},
		RefreshUnknownKID: true,
	}

	m := make(map[string]keyfunc.Options, len(jwksURLs))
	for _, url := range jwksURLs {
		m[url] = opts
	}

	multi, err := keyfunc.GetMultiple(m, keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to fetch JWK sets")
	}

	return NewKeyfuncValidator(issuer, multi.Keyfunc, logger), nil
}

// NewKeyfuncValidator wraps an already-built key resolution function. Useful
// when the keys are static or come from somewhere other than a JWKS endpoint.
func NewKeyfuncValidator(issuer string, fn jwt.Keyfunc, logger Logger) *JWKSValidator {
	if logger == nil {
		logger = defLogger{}
	}
	return &JWKSValidator{keyfunc: fn, issuer: issuer, logger: logger}
}

// Validate satisfies the TokenValidator interface.
func (v *JWKSValidator) Validate(tokenString string) (Claims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 1)
	if v.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, v.keyfunc, parserOptions...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	v.logger.Error("JWKSValidator could not decode or validate claims")
	return nil, ErrTokenMalformed
}
