package filestore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
)

func newTestOrder(id string, createdAt time.Time) *entities.Order {
	return &entities.Order{
		ID:       id,
		Provider: entities.ProviderCryptoPay,
		UserID:   42,
		Purchase: entities.Purchase{
			Kind:      entities.KindStars,
			Recipient: "alice",
			Quantity:  100,
		},
		ChargedRUB: decimal.NewFromInt(137),
		CreatedAt:  createdAt,
	}
}

func TestOrderStorePutGet(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	order := newTestOrder("inv-1", time.Now().UTC())
	require.NoError(t, store.Put(ctx, order))

	got, err := store.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, order.UserID, got.UserID)
	assert.Equal(t, "alice", got.Purchase.Recipient)
	assert.True(t, order.ChargedRUB.Equal(got.ChargedRUB))
	assert.False(t, got.Delivered)
}

func TestOrderStorePutRejectsDuplicate(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	order := newTestOrder("inv-1", time.Now().UTC())
	require.NoError(t, store.Put(ctx, order))
	assert.Error(t, store.Put(ctx, order))
}

func TestOrderStoreGetNotFound(t *testing.T) {
	store := NewOrderStore(t.TempDir())

	_, err := store.Get(context.Background(), entities.ProviderTON, "missing")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestOrderStoreGetScopedByProvider(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestOrder("shared-id", time.Now().UTC())))

	_, err := store.Get(ctx, entities.ProviderPlatega, "shared-id")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestOrderStoreMarkDelivered(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestOrder("inv-1", time.Now().UTC())))

	won, err := store.MarkDelivered(ctx, entities.ProviderCryptoPay, "inv-1", "tx:abc")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.MarkDelivered(ctx, entities.ProviderCryptoPay, "inv-1", "tx:def")
	require.NoError(t, err)
	assert.False(t, won, "second mark must lose")

	got, err := store.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	assert.Equal(t, "tx:abc", got.DeliveryResult, "losing mark must not overwrite the result")
	require.NotNil(t, got.DeliveredAt)
}

func TestOrderStoreMarkDeliveredConcurrent(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, newTestOrder("inv-1", time.Now().UTC())))

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan int, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := store.MarkDelivered(ctx, entities.ProviderCryptoPay, "inv-1", fmt.Sprintf("tx:%d", i))
			assert.NoError(t, err)
			if won {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for i := range wins {
		winners = append(winners, i)
	}
	require.Len(t, winners, 1, "exactly one goroutine may win the delivery mark")

	got, err := store.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("tx:%d", winners[0]), got.DeliveryResult)
}

func TestOrderStoreMarkDeliveredMissing(t *testing.T) {
	store := NewOrderStore(t.TempDir())

	_, err := store.MarkDelivered(context.Background(), entities.ProviderCryptoPay, "missing", "tx:abc")
	assert.True(t, domainerrors.IsNotFound(err))
}

func TestOrderStoreListUndelivered(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()
	now := time.Now().UTC()

	tooOld := newTestOrder("too-old", now.Add(-48*time.Hour))
	older := newTestOrder("older", now.Add(-2*time.Hour))
	newer := newTestOrder("newer", now.Add(-time.Hour))
	tooNew := newTestOrder("too-new", now)
	done := newTestOrder("done", now.Add(-90*time.Minute))
	for _, order := range []*entities.Order{newer, tooOld, done, older, tooNew} {
		require.NoError(t, store.Put(ctx, order))
	}
	_, err := store.MarkDelivered(ctx, entities.ProviderCryptoPay, "done", "tx:abc")
	require.NoError(t, err)

	got, err := store.ListUndelivered(ctx, now.Add(-24*time.Hour), now.Add(-30*time.Minute))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, order := range got {
		ids = append(ids, order.ID)
	}
	assert.Equal(t, []string{"older", "newer"}, ids, "window filtered, oldest first")
}

func TestOrderStoreClaimChainEvent(t *testing.T) {
	store := NewOrderStore(t.TempDir())
	ctx := context.Background()

	claimed, err := store.ClaimChainEvent(ctx, "evt-1", entities.ProviderTON, "abc123")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimChainEvent(ctx, "evt-1", entities.ProviderTON, "abc123")
	require.NoError(t, err)
	assert.True(t, claimed, "the owning order may re-claim until delivery sticks")

	claimed, err = store.ClaimChainEvent(ctx, "evt-1", entities.ProviderTON, "deadbeef")
	require.NoError(t, err)
	assert.False(t, claimed, "a claimed event must not settle another order")

	claimed, err = store.ClaimChainEvent(ctx, "evt-2", entities.ProviderTON, "deadbeef")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestOrderStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := NewOrderStore(dir)
	require.NoError(t, store.Put(ctx, newTestOrder("inv-1", time.Now().UTC())))
	_, err := store.ClaimChainEvent(ctx, "evt-1", entities.ProviderTON, "abc123")
	require.NoError(t, err)

	reopened := NewOrderStore(dir)
	_, err = reopened.Get(ctx, entities.ProviderCryptoPay, "inv-1")
	assert.NoError(t, err)

	claimed, err := reopened.ClaimChainEvent(ctx, "evt-1", entities.ProviderTON, "deadbeef")
	require.NoError(t, err)
	assert.False(t, claimed, "claim ownership survives reopen")
}
