package filestore

import (
	"context"
	"strconv"
)

// RateStore keeps admin price-book overrides in rates.json.
type RateStore struct {
	store store
}

// NewRateStore uses the exact path from configuration rather than a
// directory, matching the rates.file_path setting.
func NewRateStore(path string) *RateStore {
	return &RateStore{store: store{path: path}}
}

func (s *RateStore) Overrides(ctx context.Context) (map[string]string, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc := map[string]string{}
	if err := s.store.load(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *RateStore) SetOverride(ctx context.Context, key, value string) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc := map[string]string{}
	if err := s.store.load(&doc); err != nil {
		return err
	}
	doc[key] = value
	return s.store.save(doc)
}

// SpinStore keeps spin balances in spins.json.
type SpinStore struct {
	store store
}

func NewSpinStore(dir string) *SpinStore {
	return &SpinStore{store: store{path: join(dir, "spins.json")}}
}

func (s *SpinStore) CreditSpins(ctx context.Context, userID int64, n int) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc := map[string]int{}
	if err := s.store.load(&doc); err != nil {
		return err
	}
	doc[strconv.FormatInt(userID, 10)] += n
	return s.store.save(doc)
}

func (s *SpinStore) Spins(ctx context.Context, userID int64) (int, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc := map[string]int{}
	if err := s.store.load(&doc); err != nil {
		return 0, err
	}
	return doc[strconv.FormatInt(userID, 10)], nil
}
