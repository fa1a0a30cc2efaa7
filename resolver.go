package gateway

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Outcome is the tri-state result of a resolution strategy.
type Outcome int

const (
	// OutcomeNotApplicable means the strategy could not claim the request;
	// the orchestrator moves to the next strategy.
	OutcomeNotApplicable Outcome = iota
	// OutcomeResolved means the strategy produced an identity.
	OutcomeResolved
	// OutcomeRejected means the strategy claimed the request and denied it;
	// no further strategy runs.
	OutcomeRejected
)

// Resolution is what a strategy, and ultimately the orchestrator, hands back.
type Resolution struct {
	Outcome  Outcome
	Identity *ResolvedIdentity
	Err      error
	// AccountID names the account a rejection was attributed to, when the
	// pipeline got far enough to know it. Empty for credential-level failures.
	AccountID string
	// ClearCookie asks the edge to expire the session cookie. Set when a
	// cookie was presented but could not be used, even if a later strategy
	// resolved the request.
	ClearCookie bool
	Strategy    string
}

// ResolutionStrategy examines a request's credential material and either
// claims it or passes.
type ResolutionStrategy interface {
	Name() string
	Resolve(ctx context.Context, req Request) Resolution
}

// Strategy names, surfaced on ResolvedIdentity and security events.
const (
	StrategyCookie    = "cookie"
	StrategyBearer    = "bearer"
	StrategyDevBypass = "dev_bypass"
)

// DevBypassConfig gates the development identity behind two independent
// flags: Enabled must be set, and the client must be on a loopback address
// unless AllowRemote additionally opts out of that check. Flipping a single
// flag by mistake never opens the bypass to remote clients.
type DevBypassConfig struct {
	Enabled     bool   `json:"enabled"`
	AllowRemote bool   `json:"allow_remote"`
	Email       string `json:"email"`
	OrgID       string `json:"org_id"`
	Plan        Plan   `json:"plan"`
}

// Gateway sequences credential strategies and the shared entitlement
// pipeline. Construct once and share across requests.
type Gateway struct {
	validator   TokenValidator
	accounts    Accounts
	billing     BillingRecords
	cache       *EntitlementCache
	revocations *RevocationChecker
	locks       *LockKeeper
	refresher   BillingRefresher
	devBypass   DevBypassConfig
	sink        SecuritySink
	logger      Logger
	now         func() time.Time
	strategies  []ResolutionStrategy
}

type GatewayOption func(*Gateway)

// WithEntitlementCache replaces the default cache instance.
func WithEntitlementCache(cache *EntitlementCache) GatewayOption {
	return func(g *Gateway) {
		if cache != nil {
			g.cache = cache
		}
	}
}

// WithRevocationChecker wires the token denylist. Without it every token
// passes the revocation step.
func WithRevocationChecker(rc *RevocationChecker) GatewayOption {
	return func(g *Gateway) {
		if rc != nil {
			g.revocations = rc
		}
	}
}

// WithLockKeeper replaces the default lock keeper.
func WithLockKeeper(lk *LockKeeper) GatewayOption {
	return func(g *Gateway) {
		if lk != nil {
			g.locks = lk
		}
	}
}

// WithBillingRecords wires the billing repository so read-repair can persist
// refreshed state.
func WithBillingRecords(repo BillingRecords) GatewayOption {
	return func(g *Gateway) {
		g.billing = repo
	}
}

// WithBillingRefresher wires the provider read-repair collaborator.
func WithBillingRefresher(r BillingRefresher) GatewayOption {
	return func(g *Gateway) {
		g.refresher = r
	}
}

// WithDevBypass configures the development identity strategy.
func WithDevBypass(cfg DevBypassConfig) GatewayOption {
	return func(g *Gateway) {
		g.devBypass = cfg
	}
}

// WithSecuritySink wires the audit sink. Defaults to a noop sink.
func WithSecuritySink(sink SecuritySink) GatewayOption {
	return func(g *Gateway) {
		g.sink = normalizeSecuritySink(sink)
	}
}

// WithGatewayLogger sets the logger.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGatewayClock injects the time source, for tests.
func WithGatewayClock(clock func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if clock != nil {
			g.now = clock
		}
	}
}

// NewGateway builds a resolution gateway over the account store and token
// validator. Collaborators not supplied via options get working defaults:
// an in-process cache, a fail-open revocation checker with no store, and a
// lock keeper sharing the gateway's cache and sink.
func NewGateway(accounts Accounts, validator TokenValidator, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		accounts:  accounts,
		validator: validator,
		sink:      noopSecuritySink{},
		logger:    defLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.cache == nil {
		g.cache = NewEntitlementCache(WithCacheLogger(g.logger))
	}
	if g.revocations == nil {
		g.revocations = NewRevocationChecker(nil, WithRevocationLogger(g.logger))
	}
	if g.locks == nil {
		g.locks = NewLockKeeper(g.accounts, g.cache,
			WithLockSecuritySink(g.sink),
			WithLockLogger(g.logger),
			WithLockClock(g.now),
		)
	}

	g.strategies = []ResolutionStrategy{
		&cookieStrategy{g},
		&bearerStrategy{g},
		&devBypassStrategy{g},
	}

	return g
}

// Cache exposes the entitlement cache so webhook processing and admin
// commands can invalidate entries.
func (g *Gateway) Cache() *EntitlementCache {
	return g.cache
}

// Locks exposes the lock keeper for admin transitions.
func (g *Gateway) Locks() *LockKeeper {
	return g.locks
}

// Resolve walks the strategy list in order. A strategy that returns
// NotApplicable passes control to the next one; Resolved and Rejected are
// terminal. A cookie that failed along the way keeps its ClearCookie flag on
// the final resolution even when a later strategy wins.
func (g *Gateway) Resolve(ctx context.Context, req Request) Resolution {
	clearCookie := false

	for _, strategy := range g.strategies {
		res := strategy.Resolve(ctx, req)
		clearCookie = clearCookie || res.ClearCookie

		switch res.Outcome {
		case OutcomeNotApplicable:
			continue
		case OutcomeResolved:
			res.ClearCookie = clearCookie
			res.Strategy = strategy.Name()
			return res
		default:
			res.ClearCookie = clearCookie
			res.Strategy = strategy.Name()
			g.emitRejection(req, strategy.Name(), res.AccountID, res.Err)
			return res
		}
	}

	g.emitRejection(req, "", "", ErrMissingCredential)

	return Resolution{
		Outcome:     OutcomeRejected,
		Err:         ErrMissingCredential,
		ClearCookie: clearCookie,
	}
}

// authorize is the shared pipeline every verified token goes through:
// revocation, snapshot load, account status, session epoch, lock state, and
// finally the billing decision. The account id accompanies every failure once
// the pipeline has attributed the request, so rejections can be audited
// against the account they hit.
func (g *Gateway) authorize(ctx context.Context, claims Claims, strategy string) (*ResolvedIdentity, string, error) {
	if err := g.revocations.Check(ctx, claims.TokenID()); err != nil {
		return nil, "", err
	}

	accountID, err := claims.AccountUUID()
	if err != nil {
		return nil, "", ErrTokenMalformed.WithMetadata(map[string]any{
			"reason": "subject is not an account id",
		})
	}
	id := accountID.String()

	snapshot, err := g.snapshotFor(ctx, id)
	if err != nil {
		return nil, id, err
	}

	account := snapshot.Account
	if account.IsDisabled() {
		return nil, id, ErrAccountDisabled
	}

	if claims.SessionEpoch() != account.SessionEpoch {
		return nil, id, ErrSessionInvalidated
	}

	if err := g.locks.Evaluate(ctx, account); err != nil {
		return nil, id, err
	}

	record := g.repairBillingRecord(ctx, snapshot)

	var decision Decision
	if record == nil {
		decision = EvaluateLegacy(account, g.now())
	} else {
		decision = EvaluateBilling(record, g.now())
	}
	if err := decision.Err(); err != nil {
		return nil, id, err
	}

	return &ResolvedIdentity{
		AccountID:    account.ID,
		OrgID:        account.OrgID,
		Plan:         account.Plan,
		BillingFlags: BillingFlagsFor(record),
		Strategy:     strategy,
	}, id, nil
}

func (g *Gateway) snapshotFor(ctx context.Context, accountID string) (*EntitlementSnapshot, error) {
	return g.cache.Get(ctx, accountID, func(ctx context.Context) (*EntitlementSnapshot, error) {
		id, err := uuid.Parse(accountID)
		if err != nil {
			return nil, ErrTokenMalformed
		}
		account, err := g.accounts.GetWithBilling(ctx, id)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil, ErrSessionInvalidated.WithMetadata(map[string]any{
					"reason": "account not found",
				})
			}
			g.logger.Error("gateway: account load failed: %v", err)
			return nil, ErrAuthStoreUnavailable
		}
		return &EntitlementSnapshot{
			Account:  account,
			Billing:  account.Billing,
			CachedAt: g.now(),
		}, nil
	})
}

// repairBillingRecord asks the provider for authoritative state when a record
// claims an entitling status but lost its period end. The refreshed record is
// persisted best-effort and used for this request's decision; the cached
// snapshot is shared across requests and is never written, only invalidated,
// so the next request loads the repaired state. On any failure the stale
// record is evaluated as is.
func (g *Gateway) repairBillingRecord(ctx context.Context, snapshot *EntitlementSnapshot) *BillingRecord {
	record := snapshot.Billing
	if record == nil || g.refresher == nil {
		return record
	}

	entitling := record.BillingStatus == BillingStatusActive ||
		record.BillingStatus == BillingStatusTrialing ||
		record.BillingStatus == BillingStatusPastDue
	if !entitling || record.CurrentPeriodEnd != nil {
		return record
	}

	fixed, err := g.refresher.Refresh(ctx, record)
	if err != nil || fixed == nil {
		if err != nil {
			g.logger.Warn("gateway: billing read-repair failed for account %s: %v", record.AccountID, err)
		}
		return record
	}

	if g.billing != nil {
		if _, err := g.billing.Save(ctx, fixed); err != nil {
			g.logger.Warn("gateway: could not persist repaired billing record for account %s: %v", record.AccountID, err)
		}
	}
	g.cache.Invalidate(record.AccountID.String())

	return fixed
}

func (g *Gateway) emitRejection(req Request, strategy, accountID string, err error) {
	eventType := SecurityEventAuthRejected
	switch TextCodeOf(err) {
	case TextCodeAccountLocked, TextCodeAccountDisabled,
		TextCodePlanDenied, TextCodeBillingRequired:
		eventType = SecurityEventEntitlementDenied
	}

	RecordSecurityEvent(g.sink, g.logger, SecurityEvent{
		EventType: eventType,
		Reason:    TextCodeOf(err),
		AccountID: accountID,
		IP:        req.IP,
		Path:      req.Path,
		Metadata: map[string]any{
			"strategy": strategy,
		},
		OccurredAt: g.now(),
	})
}

// cookieStrategy handles the session cookie. Verification, store, and epoch
// failures yield NotApplicable with ClearCookie set so the bearer strategy
// still gets a chance; policy denials on a valid session reject outright.
type cookieStrategy struct {
	g *Gateway
}

func (s *cookieStrategy) Name() string {
	return StrategyCookie
}

func (s *cookieStrategy) Resolve(ctx context.Context, req Request) Resolution {
	if req.Cookie == "" {
		return Resolution{Outcome: OutcomeNotApplicable}
	}

	claims, err := s.g.validator.Validate(req.Cookie)
	if err != nil {
		s.g.logger.Debug("gateway: cookie verification failed: %v", err)
		return Resolution{Outcome: OutcomeNotApplicable, ClearCookie: true}
	}

	identity, accountID, err := s.g.authorize(ctx, claims, StrategyCookie)
	if err != nil {
		if cookieFallthrough(err) {
			s.g.logger.Debug("gateway: cookie session unusable (%s), falling through", TextCodeOf(err))
			return Resolution{Outcome: OutcomeNotApplicable, ClearCookie: true}
		}
		return Resolution{Outcome: OutcomeRejected, Err: err, AccountID: accountID}
	}

	return Resolution{Outcome: OutcomeResolved, Identity: identity}
}

// cookieFallthrough reports whether a pipeline error means the cookie session
// is unusable, as opposed to a policy denial on a live session.
func cookieFallthrough(err error) bool {
	switch TextCodeOf(err) {
	case TextCodeTokenMalformed, TextCodeTokenExpired, TextCodeBadSignature,
		TextCodeTokenRevoked, TextCodeSessionInvalidated, TextCodeAuthUnavailable:
		return true
	}
	return false
}

// bearerStrategy handles Authorization header tokens. Unlike the cookie path
// there is nothing to fall through to, so every failure rejects.
type bearerStrategy struct {
	g *Gateway
}

func (s *bearerStrategy) Name() string {
	return StrategyBearer
}

func (s *bearerStrategy) Resolve(ctx context.Context, req Request) Resolution {
	if req.Bearer == "" {
		return Resolution{Outcome: OutcomeNotApplicable}
	}

	claims, err := s.g.validator.Validate(req.Bearer)
	if err != nil {
		return Resolution{Outcome: OutcomeRejected, Err: err}
	}

	identity, accountID, err := s.g.authorize(ctx, claims, StrategyBearer)
	if err != nil {
		return Resolution{Outcome: OutcomeRejected, Err: err, AccountID: accountID}
	}

	return Resolution{Outcome: OutcomeResolved, Identity: identity}
}

// devBypassStrategy synthesizes a fixed development identity when no
// credential was presented at all. Gated by two independent flags.
type devBypassStrategy struct {
	g *Gateway
}

func (s *devBypassStrategy) Name() string {
	return StrategyDevBypass
}

func (s *devBypassStrategy) Resolve(ctx context.Context, req Request) Resolution {
	if req.Cookie != "" || req.Bearer != "" {
		return Resolution{Outcome: OutcomeNotApplicable}
	}

	cfg := s.g.devBypass
	if !cfg.Enabled {
		return Resolution{Outcome: OutcomeNotApplicable}
	}
	if !cfg.AllowRemote && !req.Loopback {
		return Resolution{Outcome: OutcomeNotApplicable}
	}

	email := req.DevAccount
	if email == "" {
		email = cfg.Email
	}
	if email == "" {
		email = "dev@localhost"
	}

	id, err := hashid.NewUUID(email)
	if err != nil {
		s.g.logger.Error("gateway: dev identity generation failed: %v", err)
		return Resolution{Outcome: OutcomeNotApplicable}
	}

	orgID := cfg.OrgID
	if orgID == "" {
		orgID = "dev"
	}
	plan := cfg.Plan
	if plan == "" {
		plan = PlanScale
	}

	s.g.logger.Warn("gateway: development bypass resolved %s as %s", email, id)

	return Resolution{
		Outcome: OutcomeResolved,
		Identity: &ResolvedIdentity{
			AccountID: id,
			OrgID:     orgID,
			Plan:      plan,
			Strategy:  StrategyDevBypass,
		},
	}
}
