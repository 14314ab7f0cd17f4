package filestore

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jetstore/store-service/internal/domain/entities"
	domainerrors "github.com/jetstore/store-service/internal/domain/errors"
)

// ReferralStore keeps the referral graph in referrals.json.
type ReferralStore struct {
	store store
}

func NewReferralStore(dir string) *ReferralStore {
	return &ReferralStore{store: store{path: join(dir, "referrals.json")}}
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

func (s *ReferralStore) loadDoc() (map[string]*entities.ReferralAccount, error) {
	doc := map[string]*entities.ReferralAccount{}
	if err := s.store.load(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *ReferralStore) Get(ctx context.Context, userID int64) (*entities.ReferralAccount, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return nil, err
	}
	acct, ok := doc[userKey(userID)]
	if !ok {
		return nil, domainerrors.NotFoundError("referral account")
	}
	return acct, nil
}

func (s *ReferralStore) GetOrCreate(ctx context.Context, userID int64) (*entities.ReferralAccount, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return nil, err
	}
	if acct, ok := doc[userKey(userID)]; ok {
		return acct, nil
	}

	acct := &entities.ReferralAccount{
		UserID:    userID,
		VolumeRUB: decimal.Zero,
		EarnedRUB: decimal.Zero,
		JoinedAt:  time.Now().UTC(),
	}
	doc[userKey(userID)] = acct
	if err := s.store.save(doc); err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *ReferralStore) AttachParents(ctx context.Context, userID int64, p1, p2, p3 *int64) (bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return false, err
	}
	acct, ok := doc[userKey(userID)]
	if !ok {
		return false, domainerrors.NotFoundError("referral account")
	}
	if acct.Parent1 != nil {
		return false, nil
	}

	acct.Parent1, acct.Parent2, acct.Parent3 = p1, p2, p3
	if err := s.store.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ReferralStore) AppendLevel(ctx context.Context, ancestorID int64, level int, userID int64) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return err
	}
	acct, ok := doc[userKey(ancestorID)]
	if !ok {
		return domainerrors.NotFoundError("referral account")
	}

	switch level {
	case 1:
		acct.Level1 = appendOnce(acct.Level1, userID)
	case 2:
		acct.Level2 = appendOnce(acct.Level2, userID)
	case 3:
		acct.Level3 = appendOnce(acct.Level3, userID)
	default:
		return domainerrors.ValidationError("level", "referral level must be 1-3")
	}
	return s.store.save(doc)
}

func appendOnce(list []int64, userID int64) []int64 {
	for _, id := range list {
		if id == userID {
			return list
		}
	}
	return append(list, userID)
}

func (s *ReferralStore) Credit(ctx context.Context, userID int64, volume, earned decimal.Decimal) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return err
	}
	acct, ok := doc[userKey(userID)]
	if !ok {
		return domainerrors.NotFoundError("referral account")
	}

	acct.VolumeRUB = acct.VolumeRUB.Add(volume)
	acct.EarnedRUB = acct.EarnedRUB.Add(earned)
	return s.store.save(doc)
}

func (s *ReferralStore) DebitEarned(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	doc, err := s.loadDoc()
	if err != nil {
		return false, err
	}
	acct, ok := doc[userKey(userID)]
	if !ok {
		return false, domainerrors.NotFoundError("referral account")
	}
	if acct.EarnedRUB.LessThan(amount) {
		return false, nil
	}

	acct.EarnedRUB = acct.EarnedRUB.Sub(amount)
	if err := s.store.save(doc); err != nil {
		return false, err
	}
	return true, nil
}
