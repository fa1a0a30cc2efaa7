package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RevokeSessionsMessage implements "log out everywhere": the account's
// session epoch is bumped so every outstanding token stops matching. When the
// triggering token's id and expiry are known the token is also denylisted, so
// it dies even if the epoch write is racing a concurrent resolution.
type RevokeSessionsMessage struct {
	AccountID      string    `json:"account_id"`
	TokenID        string    `json:"token_id,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`
	Actor          ActorRef  `json:"actor"`
}

func (e RevokeSessionsMessage) Type() string { return "account.sessions.revoke" }

type RevokeSessionsHandler struct {
	repo   RepositoryManager
	cache  *EntitlementCache
	sink   SecuritySink
	logger Logger
}

func NewRevokeSessionsHandler(repo RepositoryManager, cache *EntitlementCache, opts ...RevokeSessionsOption) *RevokeSessionsHandler {
	h := &RevokeSessionsHandler{
		repo:   repo,
		cache:  cache,
		sink:   noopSecuritySink{},
		logger: defLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type RevokeSessionsOption func(*RevokeSessionsHandler)

func WithRevokeSecuritySink(sink SecuritySink) RevokeSessionsOption {
	return func(h *RevokeSessionsHandler) {
		h.sink = normalizeSecuritySink(sink)
	}
}

func WithRevokeLogger(logger Logger) RevokeSessionsOption {
	return func(h *RevokeSessionsHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func (h *RevokeSessionsHandler) Execute(ctx context.Context, event RevokeSessionsMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during session revocation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RevokeSessionsHandler) execute(ctx context.Context, event RevokeSessionsMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := uuid.Parse(event.AccountID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account id")
	}

	var account *Account
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().IncrementSessionEpochTx(ctx, tx, id)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryNotFound, "could not bump session epoch")
		}

		if event.TokenID != "" && !event.TokenExpiresAt.IsZero() {
			if err := h.repo.Revocations().RevokeTx(ctx, tx, event.TokenID, event.TokenExpiresAt); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "could not denylist token")
			}
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "session revocation transaction failed")
	}

	if h.cache != nil {
		h.cache.Invalidate(id.String())
	}

	RecordSecurityEvent(h.sink, h.logger, SecurityEvent{
		EventType: SecurityEventSessionsRevoked,
		Actor:     event.Actor,
		AccountID: id.String(),
		Metadata: map[string]any{
			"session_epoch": account.SessionEpoch,
		},
	})

	return nil
}
