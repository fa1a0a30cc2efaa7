package gateway

import (
	"context"
	"time"
)

// SecurityEventType enumerates supported security event categories.
type SecurityEventType string

const (
	SecurityEventAuthRejected      SecurityEventType = "auth.rejected"
	SecurityEventEntitlementDenied SecurityEventType = "entitlement.denied"
	SecurityEventLockCleared       SecurityEventType = "account.lock.cleared"
	SecurityEventLockChanged       SecurityEventType = "account.lock.changed"
	SecurityEventSessionsRevoked   SecurityEventType = "account.sessions.revoked"
	SecurityEventBillingSynced     SecurityEventType = "billing.synced"
	SecurityEventWebhookIgnored    SecurityEventType = "webhook.ignored"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// SecurityEvent captures audit-friendly information about a rejection,
// denial, or state change.
type SecurityEvent struct {
	EventType  SecurityEventType
	Actor      ActorRef
	AccountID  string
	Reason     string
	IP         string
	Path       string
	Metadata   map[string]any
	OccurredAt time.Time
}

// SecuritySink consumes security events for auditing/telemetry purposes.
// Sinks run best-effort: the gateway records in a detached goroutine and logs
// sink errors, so a slow or failing sink never blocks a response.
type SecuritySink interface {
	Record(ctx context.Context, event SecurityEvent) error
}

// SecuritySinkFunc adapts a function to the SecuritySink interface.
type SecuritySinkFunc func(ctx context.Context, event SecurityEvent) error

// Record implements SecuritySink.
func (f SecuritySinkFunc) Record(ctx context.Context, event SecurityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopSecuritySink struct{}

func (noopSecuritySink) Record(context.Context, SecurityEvent) error {
	return nil
}

func normalizeSecuritySink(s SecuritySink) SecuritySink {
	if s == nil {
		return noopSecuritySink{}
	}
	return s
}

// RecordSecurityEvent appends fire-and-forget: the sink runs detached from
// the request so it is never awaited. The event context is decoupled from the
// request context to survive the response.
func RecordSecurityEvent(sink SecuritySink, logger Logger, event SecurityEvent) {
	sink = normalizeSecuritySink(sink)
	if logger == nil {
		logger = defLogger{}
	}

	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Warn("security sink panicked: %v", r)
			}
		}()
		if err := sink.Record(context.Background(), event); err != nil {
			logger.Warn("security sink record error: %v", err)
		}
	}()
}
