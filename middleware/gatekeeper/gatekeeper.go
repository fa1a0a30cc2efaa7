// Package gatekeeper provides router middleware that resolves and enforces
// request identity through a gateway instance.
package gatekeeper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	gateway "github.com/dealbase/go-gateway"
)

// ResolutionListener is invoked after a request resolves but before the
// identity is attached to the context.
type ResolutionListener func(ctx router.Context, identity *gateway.ResolvedIdentity) error

type Config struct {
	// Gateway performs the actual resolution. Required.
	Gateway *gateway.Gateway
	// Debug dumps each resolved identity to stdout.
	Debug bool
	// Filter skips the middleware for matching requests.
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	CookieName     string
	AuthScheme     string
	// ContextKey is the locals key the identity is stored under.
	ContextKey string

	// ContextEnricher propagates the identity to the standard Go context.
	// Defaults to gateway.WithIdentity.
	ContextEnricher func(c context.Context, identity *gateway.ResolvedIdentity) context.Context

	// ResolutionListeners run after resolution succeeds. Use them to emit
	// events or perform bookkeeping before the request proceeds.
	ResolutionListeners []ResolutionListener

	Logger gateway.Logger
}

func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			req := gateway.ExtractRequest(ctx, cfg.CookieName, cfg.AuthScheme)
			res := cfg.Gateway.Resolve(ctx.Context(), req)

			if res.ClearCookie {
				cookieDel(ctx, cfg.CookieName)
			}

			if res.Outcome != gateway.OutcomeResolved {
				return cfg.ErrorHandler(ctx, res.Err)
			}

			if err := cfg.runResolutionListeners(ctx, res.Identity); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if cfg.Debug {
				fmt.Println(print.MaybePrettyJSON(res.Identity))
			}

			ctx.Locals(cfg.ContextKey, res.Identity)

			stdCtx := cfg.ContextEnricher(ctx.Context(), res.Identity)
			ctx.SetContext(stdCtx)

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Gateway == nil {
		panic("GATEKEEPER: middleware configuration: Gateway is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = makeErrorHandler(cfg.Logger)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = gateway.DefaultCookieName
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = gateway.DefaultAuthScheme
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = gateway.DefaultContextKey
	}

	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = gateway.WithIdentity
	}

	return cfg
}

func (cfg *Config) runResolutionListeners(ctx router.Context, identity *gateway.ResolvedIdentity) error {
	for _, listener := range cfg.ResolutionListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, identity); err != nil {
			return err
		}
	}
	return nil
}

// makeErrorHandler maps rejection errors onto HTTP responses. Clients get the
// text code so they can distinguish "sign in again" from "your token is
// stale" from "pay your bill".
func makeErrorHandler(logger gateway.Logger) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		textCode := gateway.TextCodeOf(err)
		status := StatusFor(textCode)

		message := "authentication required"
		var richErr *errors.Error
		if errors.As(err, &richErr) && richErr.Message != "" {
			message = richErr.Message
		}

		logger.Info("gatekeeper: rejected %s %s: %s (%d)",
			ctx.Method(), ctx.OriginalURL(), textCode, status)

		return ctx.JSON(status, map[string]string{
			"error":     message,
			"text_code": textCode,
		})
	}
}

// StatusFor maps a rejection text code onto an HTTP status.
func StatusFor(textCode string) int {
	switch textCode {
	case gateway.TextCodeBillingRequired:
		return http.StatusPaymentRequired
	case gateway.TextCodeAccountLocked, gateway.TextCodeAccountDisabled,
		gateway.TextCodePlanDenied:
		return http.StatusForbidden
	case gateway.TextCodeAuthUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusUnauthorized
	}
}

func cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

type defLogger struct{}

func (defLogger) Debug(format string, args ...any) {}
func (defLogger) Info(format string, args ...any)  {}
func (defLogger) Warn(format string, args ...any)  {}
func (defLogger) Error(format string, args ...any) {}
