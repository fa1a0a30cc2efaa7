package gateway

import (
	"context"
	"sync/atomic"
	"time"
)

// RevocationChecker consults the token denylist. Revocation is an optional
// hardening feature: when its backing table was never provisioned the checker
// fails open and remembers the condition, so core auth keeps working and the
// store is not re-probed on every request. Every other storage error is fatal
// for the request; skipping the check on unknown errors is unsafe.
type RevocationChecker struct {
	store        Revocations
	logger       Logger
	now          func() time.Time
	storeMissing atomic.Bool
}

// RevocationCheckerOption customizes checker construction.
type RevocationCheckerOption func(*RevocationChecker)

// WithRevocationClock injects a custom clock (useful for tests).
func WithRevocationClock(clock func() time.Time) RevocationCheckerOption {
	return func(rc *RevocationChecker) {
		if clock != nil {
			rc.now = clock
		}
	}
}

// WithRevocationLogger overrides the logger used for fail-open warnings.
func WithRevocationLogger(logger Logger) RevocationCheckerOption {
	return func(rc *RevocationChecker) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// NewRevocationChecker returns a checker backed by the given store.
func NewRevocationChecker(store Revocations, opts ...RevocationCheckerOption) *RevocationChecker {
	rc := &RevocationChecker{
		store:  store,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(rc)
		}
	}

	return rc
}

// Check returns nil when the token is usable, ErrTokenRevoked when the token
// id appears in the denylist, and ErrAuthStoreUnavailable when the store
// failed in a way that is not safe to ignore.
func (rc *RevocationChecker) Check(ctx context.Context, tokenID string) error {
	if rc.store == nil || rc.storeMissing.Load() {
		return nil
	}

	revoked, err := rc.store.IsRevoked(ctx, tokenID, rc.now())
	if err != nil {
		if IsStoreMissingError(err) {
			// Logged once on the condition transition, not per request.
			if rc.storeMissing.CompareAndSwap(false, true) {
				rc.logger.Warn("revocation store not provisioned, failing open: %v", err)
			}
			return nil
		}
		rc.logger.Error("revocation store query failed: %v", err)
		return ErrAuthStoreUnavailable
	}

	if revoked {
		return ErrTokenRevoked
	}

	return nil
}

// Reset clears the cached store-missing condition so the next Check probes
// the store again. Call it after provisioning the revocation table.
func (rc *RevocationChecker) Reset() {
	rc.storeMissing.Store(false)
}

// StoreMissing reports whether the checker is currently failing open.
func (rc *RevocationChecker) StoreMissing() bool {
	return rc.storeMissing.Load()
}
