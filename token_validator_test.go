package gateway_test

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/dealbase/go-gateway"
)

func hmacKeyfunc(key string) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		return []byte(key), nil
	}
}

func TestKeyfuncValidatorRoundTrip(t *testing.T) {
	ts := newTokenService(nil)
	accountID := uuid.New().String()

	token, err := ts.Generate(accountID, "org-ext", 2)
	require.NoError(t, err)

	v := gateway.NewKeyfuncValidator("test-issuer", hmacKeyfunc(testSigningKey), testLogger{t})

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.AccountID())
	assert.Equal(t, "org-ext", claims.OrgID())
	assert.Equal(t, int64(2), claims.SessionEpoch())
}

func TestKeyfuncValidatorIssuerMismatch(t *testing.T) {
	ts := newTokenService(nil)

	token, err := ts.Generate(uuid.New().String(), "", 0)
	require.NoError(t, err)

	v := gateway.NewKeyfuncValidator("some-other-issuer", hmacKeyfunc(testSigningKey), testLogger{t})

	_, err = v.Validate(token)
	require.Error(t, err)
	assert.Equal(t, gateway.TextCodeTokenMalformed, gateway.TextCodeOf(err))
}

func TestKeyfuncValidatorBadSignature(t *testing.T) {
	ts := newTokenService(nil)

	token, err := ts.Generate(uuid.New().String(), "", 0)
	require.NoError(t, err)

	v := gateway.NewKeyfuncValidator("test-issuer", hmacKeyfunc("not-the-key-this-token-was-signed-with"), testLogger{t})

	_, err = v.Validate(token)
	require.Error(t, err)
	assert.Equal(t, gateway.TextCodeBadSignature, gateway.TextCodeOf(err))
}

func TestMultiTokenValidator(t *testing.T) {
	ts := newTokenService(nil)
	accountID := uuid.New().String()

	token, err := ts.Generate(accountID, "", 0)
	require.NoError(t, err)

	t.Run("malformed falls through to the next validator", func(t *testing.T) {
		wrongIssuer := gateway.NewKeyfuncValidator("some-other-issuer", hmacKeyfunc(testSigningKey), testLogger{t})

		multi := gateway.NewMultiTokenValidator(wrongIssuer, ts)

		claims, err := multi.Validate(token)
		require.NoError(t, err)
		assert.Equal(t, accountID, claims.AccountID())
	})

	t.Run("non-malformed failure stops the chain", func(t *testing.T) {
		called := false
		first := gateway.TokenValidatorFunc(func(string) (gateway.Claims, error) {
			return nil, gateway.ErrBadSignature
		})
		second := gateway.TokenValidatorFunc(func(string) (gateway.Claims, error) {
			called = true
			return ts.Validate(token)
		})

		multi := gateway.NewMultiTokenValidator(first, second)

		_, err := multi.Validate(token)
		require.Error(t, err)
		assert.Equal(t, gateway.TextCodeBadSignature, gateway.TextCodeOf(err))
		assert.False(t, called, "chain must stop at the first hard failure")
	})

	t.Run("empty chain reports malformed", func(t *testing.T) {
		multi := gateway.NewMultiTokenValidator(nil)

		_, err := multi.Validate(token)
		require.Error(t, err)
		assert.Equal(t, gateway.TextCodeTokenMalformed, gateway.TextCodeOf(err))
	})
}
