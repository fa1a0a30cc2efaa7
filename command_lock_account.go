package gateway

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// LockAccountMessage moves an account to a new lock state. Soft locks carry
// an optional expiry; hard locks ignore it.
type LockAccountMessage struct {
	AccountID string     `json:"account_id"`
	Target    LockState  `json:"target"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Actor     ActorRef   `json:"actor"`
	Reason    string     `json:"reason,omitempty"`
}

func (e LockAccountMessage) Type() string { return "account.lock" }

// ClearLockMessage lifts whatever lock an account carries.
type ClearLockMessage struct {
	AccountID string   `json:"account_id"`
	Actor     ActorRef `json:"actor"`
}

func (e ClearLockMessage) Type() string { return "account.lock.clear" }

type LockAccountHandler struct {
	repo  RepositoryManager
	locks *LockKeeper
}

func NewLockAccountHandler(repo RepositoryManager, locks *LockKeeper) *LockAccountHandler {
	return &LockAccountHandler{repo: repo, locks: locks}
}

func (h *LockAccountHandler) Execute(ctx context.Context, event LockAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account lock",
		)
	default:
		return h.apply(ctx, event.AccountID, event.Actor, event.Target, event.ExpiresAt)
	}
}

type ClearLockHandler struct {
	*LockAccountHandler
}

func NewClearLockHandler(repo RepositoryManager, locks *LockKeeper) *ClearLockHandler {
	return &ClearLockHandler{NewLockAccountHandler(repo, locks)}
}

func (h *ClearLockHandler) Execute(ctx context.Context, event ClearLockMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during lock clear",
		)
	default:
		return h.apply(ctx, event.AccountID, event.Actor, LockStateNone, nil)
	}
}

func (h *LockAccountHandler) apply(ctx context.Context, accountID string, actor ActorRef, target LockState, expiresAt *time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	id, err := uuid.Parse(accountID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account id")
	}

	account, err := h.repo.Accounts().GetWithBilling(ctx, id)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryNotFound, "could not load account")
	}

	if _, err := h.locks.Apply(ctx, actor, account, target, expiresAt); err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "lock transition failed")
	}

	return nil
}
