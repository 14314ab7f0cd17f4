package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jetstore/store-service/internal/domain/entities"
	"github.com/jetstore/store-service/internal/infrastructure/filestore"
	"github.com/jetstore/store-service/pkg/logger"
	"github.com/jetstore/store-service/pkg/metrics"
)

type fakeVerifier struct {
	settled map[string]bool
	err     error
}

func (v *fakeVerifier) Settled(ctx context.Context, order *entities.Order) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return v.settled[order.ID], nil
}

type fakeSettler struct {
	mu      sync.Mutex
	settled []string
	err     error
}

func (s *fakeSettler) Settle(ctx context.Context, provider entities.Provider, orderID string) (*entities.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settled = append(s.settled, orderID)
	return &entities.Order{ID: orderID, Provider: provider, Delivered: true}, nil
}

func putOrder(t *testing.T, store *filestore.OrderStore, id string, age time.Duration) {
	t.Helper()
	require.NoError(t, store.Put(context.Background(), &entities.Order{
		ID:         id,
		Provider:   entities.ProviderCryptoPay,
		UserID:     42,
		Purchase:   entities.Purchase{Kind: entities.KindSpin, Quantity: 1},
		ChargedRUB: decimal.NewFromInt(100),
		CreatedAt:  time.Now().UTC().Add(-age),
	}))
}

func newWorker(store *filestore.OrderStore, verifier *fakeVerifier, settler *fakeSettler) *Worker {
	return NewWorker(store, verifier, settler, DefaultConfig(), metrics.New(prometheus.NewRegistry()), logger.NewNop())
}

func TestSweepSettlesConfirmedOrders(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	putOrder(t, store, "paid", time.Hour)
	putOrder(t, store, "unpaid", time.Hour)

	verifier := &fakeVerifier{settled: map[string]bool{"paid": true}}
	settler := &fakeSettler{}
	worker := newWorker(store, verifier, settler)

	worker.RunOnce(context.Background())
	assert.Equal(t, []string{"paid"}, settler.settled)
}

func TestSweepHonorsGraceAndMaxAge(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	putOrder(t, store, "fresh", time.Minute)     // inside grace
	putOrder(t, store, "stale", 48*time.Hour)    // past max age
	putOrder(t, store, "in-window", time.Hour)

	verifier := &fakeVerifier{settled: map[string]bool{"fresh": true, "stale": true, "in-window": true}}
	settler := &fakeSettler{}
	worker := newWorker(store, verifier, settler)

	worker.RunOnce(context.Background())
	assert.Equal(t, []string{"in-window"}, settler.settled)
}

func TestSweepSkipsDeliveredOrders(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	putOrder(t, store, "done", time.Hour)
	_, err := store.MarkDelivered(context.Background(), entities.ProviderCryptoPay, "done", "tx:abc")
	require.NoError(t, err)

	verifier := &fakeVerifier{settled: map[string]bool{"done": true}}
	settler := &fakeSettler{}
	worker := newWorker(store, verifier, settler)

	worker.RunOnce(context.Background())
	assert.Empty(t, settler.settled)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	putOrder(t, store, "a", 2*time.Hour)
	putOrder(t, store, "b", time.Hour)

	verifier := &fakeVerifier{settled: map[string]bool{"a": true, "b": true}}
	settler := &fakeSettler{err: errors.New("wallet drained")}
	worker := newWorker(store, verifier, settler)

	// Delivery failures must not abort the sweep or mark anything.
	worker.RunOnce(context.Background())

	orders, err := store.ListUndelivered(context.Background(), time.Now().UTC().Add(-24*time.Hour), time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestSweepFailsClosedOnVerifierError(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	putOrder(t, store, "a", time.Hour)

	verifier := &fakeVerifier{err: errors.New("provider down")}
	settler := &fakeSettler{}
	worker := newWorker(store, verifier, settler)

	worker.RunOnce(context.Background())
	assert.Empty(t, settler.settled)
}

func TestStartRejectsBadSpec(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	worker := NewWorker(store, &fakeVerifier{}, &fakeSettler{},
		&Config{Spec: "not a cron spec", Grace: time.Minute, MaxAge: time.Hour},
		metrics.New(prometheus.NewRegistry()), logger.NewNop())

	assert.Error(t, worker.Start(context.Background()))
}

func TestStartAndStop(t *testing.T) {
	store := filestore.NewOrderStore(t.TempDir())
	worker := newWorker(store, &fakeVerifier{}, &fakeSettler{})

	require.NoError(t, worker.Start(context.Background()))
	worker.Stop()
}
