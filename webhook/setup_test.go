package webhook_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	gateway "github.com/dealbase/go-gateway"
)

const (
	createAccounts = `CREATE TABLE accounts (
    id TEXT NOT NULL PRIMARY KEY,
    org_id TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    idp_subject TEXT,
    status TEXT NOT NULL DEFAULT 'active',
    plan TEXT NOT NULL DEFAULT 'trial',
    session_epoch INTEGER NOT NULL DEFAULT 0,
    lock_state TEXT NOT NULL DEFAULT 'none',
    lock_expires_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`

	createBillingRecords = `CREATE TABLE billing_records (
    id TEXT NOT NULL PRIMARY KEY,
    account_id TEXT NOT NULL UNIQUE,
    billing_status TEXT NOT NULL DEFAULT '',
    cancel_at_period_end BOOLEAN NOT NULL DEFAULT 0,
    current_period_start TIMESTAMP NULL,
    current_period_end TIMESTAMP NULL,
    trial_end TIMESTAMP NULL,
    customer_id TEXT,
    subscription_id TEXT,
    last_processed_event_id TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
)

func setupDB(t *testing.T) (gateway.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	for _, ddl := range []string{createAccounts, createBillingRecords} {
		_, err := bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return gateway.NewRepositoryManager(bunDB), bunDB
}

func seedAccount(t *testing.T, db *bun.DB) *gateway.Account {
	t.Helper()

	account := &gateway.Account{
		ID:        uuid.New(),
		OrgID:     "org-test",
		Status:    gateway.AccountStatusActive,
		Plan:      gateway.PlanStarter,
		LockState: gateway.LockStateNone,
	}
	account.Email = account.ID.String() + "@example.com"

	_, err := db.NewInsert().Model(account).Exec(context.Background())
	require.NoError(t, err)

	return account
}

func seedBilling(t *testing.T, db *bun.DB, record *gateway.BillingRecord) *gateway.BillingRecord {
	t.Helper()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	_, err := db.NewInsert().Model(record).Exec(context.Background())
	require.NoError(t, err)

	return record
}

// event builds a provider event with the given raw object payload.
func event(t *testing.T, id, eventType string, payload any) *stripelib.Event {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return &stripelib.Event{
		ID:   id,
		Type: stripelib.EventType(eventType),
		Data: &stripelib.EventData{Raw: raw},
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []gateway.SecurityEvent
	ch     chan gateway.SecurityEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{ch: make(chan gateway.SecurityEvent, 16)}
}

func (s *captureSink) Record(_ context.Context, event gateway.SecurityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	s.ch <- event
	return nil
}

func (s *captureSink) Wait(t *testing.T) gateway.SecurityEvent {
	t.Helper()
	select {
	case event := <-s.ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a security event")
		return gateway.SecurityEvent{}
	}
}

type testLogger struct{ t *testing.T }

func (l testLogger) Debug(format string, args ...any) { l.t.Logf("DEBUG "+format, args...) }
func (l testLogger) Info(format string, args ...any)  { l.t.Logf("INFO  "+format, args...) }
func (l testLogger) Warn(format string, args ...any)  { l.t.Logf("WARN  "+format, args...) }
func (l testLogger) Error(format string, args ...any) { l.t.Logf("ERROR "+format, args...) }
