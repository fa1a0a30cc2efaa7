package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/dealbase/go-gateway"
)

func TestRevocationCheckerNilStore(t *testing.T) {
	rc := gateway.NewRevocationChecker(nil)
	assert.NoError(t, rc.Check(context.Background(), "tok-1"))
}

func TestRevocationCheckerRevoked(t *testing.T) {
	repos, _ := setupDB(t)
	rc := gateway.NewRevocationChecker(repos.Revocations())
	ctx := context.Background()

	require.NoError(t, repos.Revocations().Revoke(ctx, "tok-1", time.Now().Add(time.Hour)))

	err := rc.Check(ctx, "tok-1")
	require.Error(t, err)
	assert.Equal(t, gateway.TextCodeTokenRevoked, gateway.TextCodeOf(err))

	assert.NoError(t, rc.Check(ctx, "other-token"))
}

func TestRevocationCheckerExpiredEntry(t *testing.T) {
	repos, _ := setupDB(t)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rc := gateway.NewRevocationChecker(repos.Revocations(),
		gateway.WithRevocationClock(func() time.Time { return clock }),
	)
	ctx := context.Background()

	require.NoError(t, repos.Revocations().Revoke(ctx, "tok-1", clock.Add(time.Minute)))

	err := rc.Check(ctx, "tok-1")
	require.Error(t, err)

	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, rc.Check(ctx, "tok-1"),
		"an entry past the token's own expiry no longer matters")
}

func TestRevocationCheckerStoreMissingFailsOpen(t *testing.T) {
	// Schema without the revocation table simulates a deployment that never
	// provisioned the denylist.
	repos, _ := setupDBWithTables(t, sqliteCreateAccounts, sqliteCreateBillingRecords)
	rc := gateway.NewRevocationChecker(repos.Revocations())
	ctx := context.Background()

	assert.NoError(t, rc.Check(ctx, "tok-1"))
	assert.True(t, rc.StoreMissing())

	// Once latched, subsequent checks skip the store entirely.
	assert.NoError(t, rc.Check(ctx, "tok-2"))

	rc.Reset()
	assert.False(t, rc.StoreMissing())
}

func TestRevocationsPurgeExpired(t *testing.T) {
	repos, _ := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repos.Revocations().Revoke(ctx, "dead-1", now.Add(-time.Hour)))
	require.NoError(t, repos.Revocations().Revoke(ctx, "dead-2", now.Add(-time.Minute)))
	require.NoError(t, repos.Revocations().Revoke(ctx, "alive", now.Add(time.Hour)))

	purged, err := repos.Revocations().PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	revoked, err := repos.Revocations().IsRevoked(ctx, "alive", now)
	require.NoError(t, err)
	assert.True(t, revoked)
}
