package gatekeeper_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	gateway "github.com/dealbase/go-gateway"
	"github.com/dealbase/go-gateway/middleware/gatekeeper"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		textCode string
		status   int
	}{
		{gateway.TextCodeMissingCredential, http.StatusUnauthorized},
		{gateway.TextCodeTokenMalformed, http.StatusUnauthorized},
		{gateway.TextCodeTokenExpired, http.StatusUnauthorized},
		{gateway.TextCodeTokenRevoked, http.StatusUnauthorized},
		{gateway.TextCodeSessionInvalidated, http.StatusUnauthorized},
		{gateway.TextCodeBillingRequired, http.StatusPaymentRequired},
		{gateway.TextCodeAccountLocked, http.StatusForbidden},
		{gateway.TextCodeAccountDisabled, http.StatusForbidden},
		{gateway.TextCodePlanDenied, http.StatusForbidden},
		{gateway.TextCodeAuthUnavailable, http.StatusServiceUnavailable},
		{"", http.StatusUnauthorized},
		{"SOMETHING_ELSE", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.status, gatekeeper.StatusFor(tc.textCode), tc.textCode)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	t.Run("requires a gateway", func(t *testing.T) {
		assert.Panics(t, func() {
			gatekeeper.GetDefaultConfig(gatekeeper.Config{})
		})
	})

	t.Run("fills defaults", func(t *testing.T) {
		gw := gateway.NewGateway(nil, nil)
		cfg := gatekeeper.GetDefaultConfig(gatekeeper.Config{Gateway: gw})

		assert.Equal(t, gateway.DefaultCookieName, cfg.CookieName)
		assert.Equal(t, gateway.DefaultAuthScheme, cfg.AuthScheme)
		assert.Equal(t, gateway.DefaultContextKey, cfg.ContextKey)
		assert.NotNil(t, cfg.SuccessHandler)
		assert.NotNil(t, cfg.ErrorHandler)
		assert.NotNil(t, cfg.ContextEnricher)
	})
}
