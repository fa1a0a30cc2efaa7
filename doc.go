// Package gateway resolves the identity and entitlement of every inbound
// request: who is calling, whether their credentials still stand, whether
// their account is locked, and whether their subscription entitles them to
// the product.
//
// Resolution strategies:
//   - Credentials arrive as a signed session cookie, a bearer token, or (in
//     explicitly configured local deployments) a development bypass. The
//     Resolver walks an ordered strategy list and only falls through to the
//     next strategy when the current one does not apply, never after an
//     outright rejection.
//   - A failed cookie is cleared and the bearer path still gets its chance,
//     so a stale browser cookie cannot shadow a valid API token.
//
// Entitlement state:
//   - Account and billing rows are read through a short-TTL EntitlementCache
//     that is explicitly invalidated by admin commands and by the webhook
//     synchronizer, so webhook-driven changes land ahead of TTL expiry.
//   - EvaluateBilling maps provider subscription state into an allow/deny
//     decision aware of trial and period boundaries; unknown states fail
//     closed. LockKeeper enforces soft/hard account locks and clears soft
//     locks whose expiry has passed on the request path.
//
// Security events:
//   - SecuritySink is a best-effort audit emitter. Every rejection and denial
//     is recorded with its reason without ever blocking the response.
package gateway
