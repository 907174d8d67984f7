package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/premium-verification/internal/domain"
)

func TestMemoryUsersGetOrCreateIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Users().GetOrCreateByExternalID(ctx, "42")
	require.NoError(t, err)
	second, err := store.Users().GetOrCreateByExternalID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.Entitled)
}

func TestMemoryUsersMarkEntitledFlipsOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	user, err := store.Users().GetOrCreateByExternalID(ctx, "42")
	require.NoError(t, err)

	now := time.Now()
	changed, err := store.Users().MarkEntitled(ctx, user.ID, now, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Users().MarkEntitled(ctx, user.ID, now, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.Users().MarkEntitled(ctx, "missing", now, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryTicketsOneLivePerUserUnderRace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Tickets().InsertLive(ctx, &domain.Ticket{UserID: "u1", ChannelRef: "c"})
			if err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrLiveTicketExists)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
}

func TestMemoryTicketsTerminalTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	ticket := &domain.Ticket{UserID: "u1", ChannelRef: "c1"}
	require.NoError(t, store.Tickets().InsertLive(ctx, ticket))

	require.NoError(t, store.Tickets().SoftDelete(ctx, ticket.ID, time.Now()))
	_, err := store.Tickets().FindLiveByUser(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Tickets().Close(ctx, ticket.ID, time.Now()), ErrNotFound)

	next := &domain.Ticket{UserID: "u1", ChannelRef: "c2"}
	require.NoError(t, store.Tickets().InsertLive(ctx, next))
	require.NoError(t, store.Tickets().Close(ctx, next.ID, time.Now()))
	assert.Len(t, store.TicketsForUser("u1"), 2)
}

func TestMemoryPaymentsUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	payments := store.Payments()

	require.NoError(t, payments.Insert(ctx, &domain.Payment{UserID: "u1", OrderID: "ORD1", PaymentIntentID: "pi_a", Confirmed: true}))
	assert.ErrorIs(t, payments.Insert(ctx, &domain.Payment{UserID: "u2", OrderID: "ORD1", PaymentIntentID: "pi_b"}), ErrDuplicateOrder)
	assert.ErrorIs(t, payments.Insert(ctx, &domain.Payment{UserID: "u2", OrderID: "ORD2", PaymentIntentID: "pi_a"}), ErrDuplicateIntent)

	exists, err := payments.ExistsConfirmedForUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = payments.ExistsConfirmedForUser(ctx, "u2")
	require.NoError(t, err)
	assert.False(t, exists)

	found, err := payments.FindByOrderID(ctx, "ORD1")
	require.NoError(t, err)
	assert.Equal(t, "pi_a", found.PaymentIntentID)
	assert.Len(t, store.AllPayments(), 1)
}

func TestMemoryPaymentsOrderConflictWinsOverIntent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	payments := store.Payments()

	require.NoError(t, payments.Insert(ctx, &domain.Payment{UserID: "u1", OrderID: "ORD1", PaymentIntentID: "pi_a"}))
	require.NoError(t, payments.Insert(ctx, &domain.Payment{UserID: "u2", OrderID: "ORD2", PaymentIntentID: "pi_b"}))

	// Each existing row collides on a different column; every run must agree.
	for i := 0; i < 20; i++ {
		err := payments.Insert(ctx, &domain.Payment{UserID: "u3", OrderID: "ORD2", PaymentIntentID: "pi_a"})
		assert.ErrorIs(t, err, ErrDuplicateOrder)
	}
	assert.Len(t, store.AllPayments(), 2)
}

func TestMemoryUsersExtendEntitlement(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	users := store.Users()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	user, err := users.GetOrCreateByExternalID(ctx, "42")
	require.NoError(t, err)
	_, err = users.ExtendEntitlement(ctx, user.ID, now, 30)
	assert.ErrorIs(t, err, ErrNotEntitled)
	_, err = users.ExtendEntitlement(ctx, "missing", now, 30)
	assert.ErrorIs(t, err, ErrNotFound)

	end := now.AddDate(0, 0, 10)
	_, err = users.MarkEntitled(ctx, user.ID, now, &end)
	require.NoError(t, err)

	extended, err := users.ExtendEntitlement(ctx, user.ID, now, 30)
	require.NoError(t, err)
	require.NotNil(t, extended.EntitlementEnd)
	assert.Equal(t, now.AddDate(0, 0, 40), *extended.EntitlementEnd)

	// A lapsed period restarts from now.
	later := now.AddDate(0, 0, 100)
	extended, err = users.ExtendEntitlement(ctx, user.ID, later, 5)
	require.NoError(t, err)
	assert.Equal(t, later.AddDate(0, 0, 5), *extended.EntitlementEnd)
}

func TestMemoryUsersExtendUnboundedEntitlementIsNoop(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	user, err := store.Users().GetOrCreateByExternalID(ctx, "7")
	require.NoError(t, err)
	_, err = store.Users().MarkEntitled(ctx, user.ID, time.Now(), nil)
	require.NoError(t, err)

	extended, err := store.Users().ExtendEntitlement(ctx, user.ID, time.Now(), 30)
	require.NoError(t, err)
	assert.True(t, extended.Entitled)
	assert.Nil(t, extended.EntitlementEnd)
}
