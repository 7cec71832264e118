// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the auth_events table

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "audit.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	event := &AuthEvent{
		Route:   "docs",
		Scheme:  "basic",
		User:    "alice",
		Outcome: OutcomeVerified,
	}

	err := store.AppendAuthEvent(ctx, event)
	require.NoError(t, err)

	// Should have generated ID and timestamp
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	events, err := store.ListAuthEvents(ctx, AuthEventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)
	assert.Equal(t, "alice", events[0].User)
	assert.True(t, event.Timestamp.Equal(events[0].Timestamp))
}

func TestAuditStore_AppendRejectsUnknownOutcome(t *testing.T) {
	store := setupTestStore(t)

	err := store.AppendAuthEvent(context.Background(), &AuthEvent{Route: "docs", Outcome: "maybe"})
	assert.Error(t, err)
}

func TestAuditStore_List_NewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, route := range []string{"alpha", "beta", "gamma"} {
		require.NoError(t, store.AppendAuthEvent(ctx, &AuthEvent{
			Route:     route,
			Scheme:    "cookie",
			Outcome:   OutcomeVerified,
			Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
		}))
	}

	events, err := store.ListAuthEvents(ctx, AuthEventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "gamma", events[0].Route)
	assert.Equal(t, "alpha", events[2].Route)
}

func TestAuditStore_List_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	entries := []AuthEvent{
		{Route: "docs", Scheme: "basic", Outcome: OutcomeVerified, Timestamp: base},
		{Route: "docs", Scheme: "form", Outcome: OutcomeFailed, ErrorKind: "unauthorized", Message: "passphrase not found", Timestamp: base.Add(time.Minute)},
		{Route: "vip", Scheme: "bearer", Outcome: OutcomeFailed, ErrorKind: "expired", Timestamp: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, store.AppendAuthEvent(ctx, &entries[i]))
	}

	route := "docs"
	events, err := store.ListAuthEvents(ctx, AuthEventFilter{Route: &route})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	failed := OutcomeFailed
	events, err = store.ListAuthEvents(ctx, AuthEventFilter{Outcome: &failed})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "vip", events[0].Route)
	assert.Equal(t, "passphrase not found", events[1].Message)

	since := base.Add(30 * time.Second)
	events, err = store.ListAuthEvents(ctx, AuthEventFilter{Since: &since, Route: &route})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "form", events[0].Scheme)
}

func TestAuditStore_List_Limit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAuthEvent(ctx, &AuthEvent{
			Route:   fmt.Sprintf("route-%d", i),
			Outcome: OutcomeVerified,
		}))
	}

	events, err := store.ListAuthEvents(ctx, AuthEventFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = store.ListAuthEvents(ctx, AuthEventFilter{})
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

func TestAuditStore_List_Empty(t *testing.T) {
	store := setupTestStore(t)

	events, err := store.ListAuthEvents(context.Background(), AuthEventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestAuditStore_ConcurrentAppend(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.AppendAuthEvent(ctx, &AuthEvent{Route: fmt.Sprintf("r%d", i), Outcome: OutcomeFailed})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	events, err := store.ListAuthEvents(ctx, AuthEventFilter{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, events, 20)
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-3))
	assert.Equal(t, 7, normalizeAuditLimit(7))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}
