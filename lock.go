package gateway

import (
	"context"
	"time"
)

// LockKeeper evaluates and mutates account lock state.
//
// Request-path enforcement: hard locks always deny and have no automatic
// exit; soft locks deny until their expiry passes, at which point the first
// request after expiry clears the lock, invalidates the cached snapshot, and
// is itself allowed.
//
// Admin transitions run through a transition table in Apply.
type LockKeeper struct {
	accounts    Accounts
	cache       *EntitlementCache
	transitions map[LockState]map[LockState]struct{}
	now         func() time.Time
	sink        SecuritySink
	logger      Logger
}

// LockKeeperOption customizes lock keeper construction.
type LockKeeperOption func(*LockKeeper)

// WithLockClock injects a custom clock (useful for tests).
func WithLockClock(clock func() time.Time) LockKeeperOption {
	return func(lk *LockKeeper) {
		if clock != nil {
			lk.now = clock
		}
	}
}

// WithLockSecuritySink sets the SecuritySink used to publish lock events.
func WithLockSecuritySink(sink SecuritySink) LockKeeperOption {
	return func(lk *LockKeeper) {
		lk.sink = normalizeSecuritySink(sink)
	}
}

// WithLockLogger overrides the logger used for opportunistic-clear failures.
func WithLockLogger(logger Logger) LockKeeperOption {
	return func(lk *LockKeeper) {
		if logger != nil {
			lk.logger = logger
		}
	}
}

// NewLockKeeper returns the default implementation backed by the provided
// repository and cache.
func NewLockKeeper(accounts Accounts, cache *EntitlementCache, opts ...LockKeeperOption) *LockKeeper {
	lk := &LockKeeper{
		accounts: accounts,
		cache:    cache,
		transitions: map[LockState]map[LockState]struct{}{
			LockStateNone: {
				LockStateSoft: {},
				LockStateHard: {},
			},
			LockStateSoft: {
				LockStateNone: {},
				LockStateHard: {},
			},
			LockStateHard: {
				LockStateNone: {},
			},
		},
		now:    time.Now,
		sink:   noopSecuritySink{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(lk)
		}
	}

	return lk
}

// Evaluate enforces the account's lock state for the current request.
// Returns nil when the request may proceed. The account usually comes from
// the shared entitlement cache, so Evaluate never writes to it; state changes
// go to the store and the cache entry is invalidated.
func (lk *LockKeeper) Evaluate(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrAuthStoreUnavailable
	}

	state := account.LockState
	if state == "" {
		state = LockStateNone
	}

	switch state {
	case LockStateNone:
		return nil

	case LockStateHard:
		return ErrAccountLocked.WithMetadata(map[string]any{
			"lock_state": LockStateHard,
		})

	case LockStateSoft:
		if !account.SoftLockExpired(lk.now()) {
			meta := map[string]any{
				"lock_state": LockStateSoft,
			}
			if account.LockExpiresAt != nil {
				meta["lock_expires_at"] = account.LockExpiresAt.UTC()
			}
			return ErrAccountLocked.WithMetadata(meta)
		}
		lk.clearExpiredSoftLock(ctx, account)
		return nil

	default:
		// Unknown lock states fail closed.
		return ErrAccountLocked.WithMetadata(map[string]any{
			"lock_state": state,
		})
	}
}

// Apply performs an admin lock transition, validating it against the
// transition table, then invalidates the cached snapshot so the change is
// visible on the next request. The input account is read only; the returned
// account is a copy carrying the new state.
func (lk *LockKeeper) Apply(ctx context.Context, actor ActorRef, account *Account, target LockState, expiresAt *time.Time) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidLockTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "account is nil",
		})
	}

	from := account.LockState
	if from == "" {
		from = LockStateNone
	}

	if target == "" {
		return nil, ErrInvalidLockTransition.WithMetadata(map[string]any{
			"reason": "target lock state is empty",
		})
	}

	if from == target {
		return account, nil
	}

	if !lk.canTransition(from, target) {
		return nil, ErrInvalidLockTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	if target != LockStateSoft {
		expiresAt = nil
	}

	updated, err := lk.accounts.UpdateLockState(ctx, account.ID, target, expiresAt)
	if err != nil {
		return nil, err
	}

	result := *account
	result.LockState = target
	result.LockExpiresAt = expiresAt
	if updated != nil {
		result.LockState = updated.LockState
		result.LockExpiresAt = updated.LockExpiresAt
	}

	if lk.cache != nil {
		lk.cache.Invalidate(account.ID.String())
	}

	RecordSecurityEvent(lk.sink, lk.logger, SecurityEvent{
		EventType: SecurityEventLockChanged,
		Actor:     actor,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"from": from,
			"to":   target,
		},
	})

	return &result, nil
}

func (lk *LockKeeper) canTransition(from, to LockState) bool {
	if allowed, ok := lk.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// clearExpiredSoftLock opportunistically persists the none state so
// subsequent requests see an unlocked account without admin intervention.
// The current request proceeds either way; a persistence failure only means
// the next request repeats the attempt. The account object may be shared
// through the cache and is not touched; invalidation publishes the change.
func (lk *LockKeeper) clearExpiredSoftLock(ctx context.Context, account *Account) {
	if _, err := lk.accounts.UpdateLockState(ctx, account.ID, LockStateNone, nil); err != nil {
		lk.logger.Warn("failed to clear expired soft lock for %s: %v", account.ID, err)
		return
	}

	if lk.cache != nil {
		lk.cache.Invalidate(account.ID.String())
	}

	RecordSecurityEvent(lk.sink, lk.logger, SecurityEvent{
		EventType: SecurityEventLockCleared,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"from": LockStateSoft,
			"to":   LockStateNone,
		},
	})
}
