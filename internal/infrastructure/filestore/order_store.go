package filestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
)

// OrderStore keeps orders in orders.json and consumed chain event ids
// in chain_events.json. The mutex serializes read-modify-write cycles,
// which is what makes MarkDelivered a CAS here.
type OrderStore struct {
	orders store
	events store
}

// NewOrderStore creates a file-backed order store rooted at dir.
func NewOrderStore(dir string) *OrderStore {
	return &OrderStore{
		orders: store{path: join(dir, "orders.json")},
		events: store{path: join(dir, "chain_events.json")},
	}
}

func orderKey(provider entities.Provider, id string) string {
	return string(provider) + ":" + id
}

func (s *OrderStore) Put(ctx context.Context, order *entities.Order) error {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()

	doc := map[string]*entities.Order{}
	if err := s.orders.load(&doc); err != nil {
		return err
	}

	key := orderKey(order.Provider, order.ID)
	if _, exists := doc[key]; exists {
		return fmt.Errorf("order %s already exists", key)
	}
	doc[key] = order
	return s.orders.save(doc)
}

func (s *OrderStore) Get(ctx context.Context, provider entities.Provider, id string) (*entities.Order, error) {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()

	doc := map[string]*entities.Order{}
	if err := s.orders.load(&doc); err != nil {
		return nil, err
	}

	order, ok := doc[orderKey(provider, id)]
	if !ok {
		return nil, domainerrors.NotFoundError("order")
	}
	return order, nil
}

func (s *OrderStore) ListUndelivered(ctx context.Context, oldest, newest time.Time) ([]*entities.Order, error) {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()

	doc := map[string]*entities.Order{}
	if err := s.orders.load(&doc); err != nil {
		return nil, err
	}

	out := make([]*entities.Order, 0)
	for _, order := range doc {
		if order.Delivered {
			continue
		}
		if order.CreatedAt.Before(oldest) || order.CreatedAt.After(newest) {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *OrderStore) MarkDelivered(ctx context.Context, provider entities.Provider, id, result string) (bool, error) {
	s.orders.mu.Lock()
	defer s.orders.mu.Unlock()

	doc := map[string]*entities.Order{}
	if err := s.orders.load(&doc); err != nil {
		return false, err
	}

	order, ok := doc[orderKey(provider, id)]
	if !ok {
		return false, domainerrors.NotFoundError("order")
	}
	if order.Delivered {
		return false, nil
	}

	now := time.Now().UTC()
	order.Delivered = true
	order.DeliveredAt = &now
	order.DeliveryResult = result
	if err := s.orders.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

type chainClaim struct {
	Provider  entities.Provider `json:"provider"`
	OrderID   string            `json:"order_id"`
	ClaimedAt time.Time         `json:"claimed_at"`
}

func (s *OrderStore) ClaimChainEvent(ctx context.Context, eventID string, provider entities.Provider, orderID string) (bool, error) {
	s.events.mu.Lock()
	defer s.events.mu.Unlock()

	doc := map[string]chainClaim{}
	if err := s.events.load(&doc); err != nil {
		return false, err
	}

	if claim, seen := doc[eventID]; seen {
		// The owning order may re-claim until its delivery sticks.
		return claim.Provider == provider && claim.OrderID == orderID, nil
	}
	doc[eventID] = chainClaim{Provider: provider, OrderID: orderID, ClaimedAt: time.Now().UTC()}
	if err := s.events.save(doc); err != nil {
		return false, err
	}
	return true, nil
}
