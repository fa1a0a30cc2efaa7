package webhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/uptrace/bun"

	gateway "github.com/dealbase/go-gateway"
)

// Handled billing provider event types.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
)

// MetadataAccountKey is the event metadata key carrying the account id when
// the subscription is not yet linked to a billing record.
const MetadataAccountKey = "account_id"

// Synchronizer folds billing provider lifecycle events into billing records
// and invalidates the entitlement cache so the next request sees fresh state.
// Processing is idempotent per event id.
type Synchronizer struct {
	repo   gateway.RepositoryManager
	cache  *gateway.EntitlementCache
	sink   gateway.SecuritySink
	logger gateway.Logger
	now    func() time.Time
}

type SynchronizerOption func(*Synchronizer)

func WithSecuritySink(sink gateway.SecuritySink) SynchronizerOption {
	return func(s *Synchronizer) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithLogger(logger gateway.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(clock func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewSynchronizer(repo gateway.RepositoryManager, cache *gateway.EntitlementCache, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		repo:   repo,
		cache:  cache,
		logger: gateway.DefaultLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// subscriptionPayload is a minimal representation of a provider subscription
// event. Period bounds live at the top level on older API versions and on the
// first subscription item on newer ones; both are read.
type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	TrialEnd           int64  `json:"trial_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

func (p *subscriptionPayload) periodStart() int64 {
	if p.CurrentPeriodStart != 0 {
		return p.CurrentPeriodStart
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodStart
	}
	return 0
}

func (p *subscriptionPayload) periodEnd() int64 {
	if p.CurrentPeriodEnd != 0 {
		return p.CurrentPeriodEnd
	}
	if len(p.Items.Data) > 0 {
		return p.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

// checkoutPayload is a minimal representation of a checkout session event.
type checkoutPayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// invoicePayload is a minimal representation of an invoice event. Line
// periods carry the window the invoice pays for.
type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Lines        struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
	Metadata map[string]string `json:"metadata"`
}

// paidPeriod returns the widest window covered by the invoice lines, or
// zeros when the payload carries no line periods.
func (p *invoicePayload) paidPeriod() (start, end int64) {
	for _, line := range p.Lines.Data {
		if start == 0 || (line.Period.Start != 0 && line.Period.Start < start) {
			start = line.Period.Start
		}
		if line.Period.End > end {
			end = line.Period.End
		}
	}
	return start, end
}

// Process folds one verified event into the billing state. Unknown event
// types are logged and ignored, never an error.
func (s *Synchronizer) Process(ctx context.Context, event *stripelib.Event) error {
	switch string(event.Type) {
	case EventCheckoutCompleted:
		var session checkoutPayload
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode checkout session")
		}
		return s.applyCheckout(ctx, event.ID, session)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub subscriptionPayload
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode subscription")
		}
		if string(event.Type) == EventSubscriptionDeleted {
			sub.Status = gateway.BillingStatusCanceled
		}
		return s.applySubscription(ctx, event.ID, sub)

	case EventInvoicePaid, EventInvoiceFailed:
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryBadInput, "decode invoice")
		}
		status := gateway.BillingStatusActive
		if string(event.Type) == EventInvoiceFailed {
			status = gateway.BillingStatusPastDue
		}
		return s.applyInvoice(ctx, event.ID, inv, status)

	default:
		s.logger.Info("webhook: ignored event type %s (%s)", event.Type, event.ID)
		s.emit(gateway.SecurityEvent{
			EventType: gateway.SecurityEventWebhookIgnored,
			Reason:    string(event.Type),
			Metadata:  map[string]any{"event_id": event.ID},
		})
		return nil
	}
}

func (s *Synchronizer) applyCheckout(ctx context.Context, eventID string, session checkoutPayload) error {
	record, err := s.resolveRecord(ctx, session.Subscription, session.Customer, session.Metadata)
	if err != nil || record == nil {
		return err
	}
	if record.LastProcessedEventID == eventID {
		s.logger.Debug("webhook: event %s already processed, skipping", eventID)
		return nil
	}

	record.CustomerID = valueOr(session.Customer, record.CustomerID)
	record.SubscriptionID = valueOr(session.Subscription, record.SubscriptionID)
	if record.BillingStatus == "" {
		record.BillingStatus = gateway.BillingStatusActive
	}

	return s.persist(ctx, eventID, record)
}

func (s *Synchronizer) applySubscription(ctx context.Context, eventID string, sub subscriptionPayload) error {
	record, err := s.resolveRecord(ctx, sub.ID, sub.Customer, sub.Metadata)
	if err != nil || record == nil {
		return err
	}
	if record.LastProcessedEventID == eventID {
		s.logger.Debug("webhook: event %s already processed, skipping", eventID)
		return nil
	}

	record.CustomerID = valueOr(sub.Customer, record.CustomerID)
	record.SubscriptionID = valueOr(sub.ID, record.SubscriptionID)
	record.BillingStatus = sub.Status
	record.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	record.CurrentPeriodStart = unixTime(sub.periodStart())
	record.CurrentPeriodEnd = unixTime(sub.periodEnd())
	record.TrialEnd = unixTime(sub.TrialEnd)

	return s.persist(ctx, eventID, record)
}

func (s *Synchronizer) applyInvoice(ctx context.Context, eventID string, inv invoicePayload, status gateway.BillingStatus) error {
	record, err := s.resolveRecord(ctx, inv.Subscription, inv.Customer, inv.Metadata)
	if err != nil || record == nil {
		return err
	}
	if record.LastProcessedEventID == eventID {
		s.logger.Debug("webhook: event %s already processed, skipping", eventID)
		return nil
	}

	record.BillingStatus = status

	// A paid invoice extends the paid-through window right away, so the
	// subscriber is not denied while the subscription.updated event is
	// still in flight.
	if status == gateway.BillingStatusActive {
		if start, end := inv.paidPeriod(); end != 0 {
			record.CurrentPeriodStart = unixTime(start)
			record.CurrentPeriodEnd = unixTime(end)
		}
	}

	return s.persist(ctx, eventID, record)
}

// resolveRecord finds or seeds the billing record targeted by an event:
// by subscription id first, then customer id, then the account id embedded in
// event metadata for subscriptions not yet linked. A nil, nil return means
// the event cannot be attributed and should be dropped after logging.
func (s *Synchronizer) resolveRecord(ctx context.Context, subscriptionID, customerID string, metadata map[string]string) (*gateway.BillingRecord, error) {
	billing := s.repo.BillingRecords()

	if id := strings.TrimSpace(subscriptionID); id != "" {
		record, err := billing.GetBySubscriptionID(ctx, id)
		if err == nil {
			return record, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "lookup by subscription id")
		}
	}

	if id := strings.TrimSpace(customerID); id != "" {
		record, err := billing.GetByCustomerID(ctx, id)
		if err == nil {
			return record, nil
		}
		if !repository.IsRecordNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "lookup by customer id")
		}
	}

	raw := strings.TrimSpace(metadata[MetadataAccountKey])
	if raw == "" {
		s.logger.Warn("webhook: event has no known subscription, customer, or account metadata, dropping")
		return nil, nil
	}

	accountID, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("webhook: metadata %s %q is not an account id, dropping", MetadataAccountKey, raw)
		return nil, nil
	}

	if _, err := s.repo.Accounts().GetWithBilling(ctx, accountID); err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Warn("webhook: metadata names unknown account %s, dropping", accountID)
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "lookup account")
	}

	record, err := billing.GetByAccountID(ctx, accountID)
	if err == nil {
		return record, nil
	}
	if !repository.IsRecordNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "lookup by account id")
	}

	return &gateway.BillingRecord{AccountID: accountID}, nil
}

func (s *Synchronizer) persist(ctx context.Context, eventID string, record *gateway.BillingRecord) error {
	record.LastProcessedEventID = eventID

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := s.repo.BillingRecords().SaveTx(ctx, tx, record)
		return err
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "persist billing record")
	}

	if s.cache != nil {
		s.cache.Invalidate(record.AccountID.String())
	}

	s.emit(gateway.SecurityEvent{
		EventType: gateway.SecurityEventBillingSynced,
		AccountID: record.AccountID.String(),
		Reason:    record.BillingStatus,
		Metadata: map[string]any{
			"event_id":        eventID,
			"subscription_id": record.SubscriptionID,
		},
	})

	return nil
}

func (s *Synchronizer) emit(event gateway.SecurityEvent) {
	if s.sink == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	gateway.RecordSecurityEvent(s.sink, s.logger, event)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
