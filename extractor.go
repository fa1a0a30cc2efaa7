package gateway

import (
	"net"
	"strings"

	"github.com/goliatone/go-router"
)

// DevBypassHeader names the account the development bypass should resolve.
const DevBypassHeader = "X-Dev-Account"

// Request is the credential material extracted from an incoming request.
// The gateway core operates on this struct so it never touches the router
// context directly.
type Request struct {
	// Cookie is the raw session cookie value, empty when absent.
	Cookie string
	// Bearer is the raw bearer token from the Authorization header,
	// empty when absent or when the scheme does not match.
	Bearer string
	// DevAccount is the dev bypass header value, empty when absent.
	DevAccount string
	// IP is the client address as reported by the router.
	IP string
	// Path is the request path, used for security event context.
	Path string
	// Loopback reports whether the client address is a loopback address.
	Loopback bool
}

// HasCredential reports whether any credential material was presented.
func (r Request) HasCredential() bool {
	return r.Cookie != "" || r.Bearer != "" || r.DevAccount != ""
}

// ExtractRequest pulls credential material out of a router context. Extraction
// never fails: missing credentials leave the fields empty and let resolution
// decide what that means.
func ExtractRequest(ctx router.Context, cookieName, authScheme string) Request {
	req := Request{
		Cookie:     ctx.Cookies(cookieName),
		Bearer:     bearerFromHeader(ctx.GetString(router.HeaderAuthorization, ""), authScheme),
		DevAccount: ctx.GetString(DevBypassHeader, ""),
		IP:         ctx.IP(),
		Path:       ctx.Path(),
	}
	req.Loopback = isLoopback(req.IP)
	return req
}

// bearerFromHeader strips the auth scheme prefix from an Authorization header
// value. Returns empty if the scheme does not match.
func bearerFromHeader(header, authScheme string) string {
	if header == "" {
		return ""
	}
	authScheme = strings.TrimSpace(authScheme)
	l := len(authScheme)
	if l == 0 {
		return strings.TrimSpace(header)
	}
	if len(header) > l+1 && strings.EqualFold(header[:l], authScheme) {
		return strings.TrimSpace(header[l:])
	}
	return ""
}

func isLoopback(addr string) bool {
	if addr == "" {
		return false
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}
