package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralTier is a volume-based loyalty band.
type ReferralTier string

const (
	TierBronze ReferralTier = "bronze"
	TierSilver ReferralTier = "silver"
	TierGold   ReferralTier = "gold"
)

// ReferralAccount is one user's node in the 3-level referral graph.
// Parent pointers are fixed at first attribution and never rewritten.
// Level lists are append-only mirrors of the downline.
type ReferralAccount struct {
	UserID    int64           `db:"user_id" json:"user_id"`
	Parent1   *int64          `db:"parent1" json:"parent1,omitempty"`
	Parent2   *int64          `db:"parent2" json:"parent2,omitempty"`
	Parent3   *int64          `db:"parent3" json:"parent3,omitempty"`
	Level1    []int64         `json:"level1"`
	Level2    []int64         `json:"level2"`
	Level3    []int64         `json:"level3"`
	VolumeRUB decimal.Decimal `db:"volume_rub" json:"volume_rub"`
	EarnedRUB decimal.Decimal `db:"earned_rub" json:"earned_rub"`
	JoinedAt  time.Time       `db:"joined_at" json:"joined_at"`
}

// Parents returns the ancestor chain, closest first, skipping unset levels.
func (a *ReferralAccount) Parents() []int64 {
	out := make([]int64, 0, 3)
	for _, p := range []*int64{a.Parent1, a.Parent2, a.Parent3} {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// ReferralStats is the public stats projection.
type ReferralStats struct {
	UserID    int64           `json:"user_id"`
	Tier      ReferralTier    `json:"tier"`
	Level1    int             `json:"level1_count"`
	Level2    int             `json:"level2_count"`
	Level3    int             `json:"level3_count"`
	VolumeRUB decimal.Decimal `json:"volume_rub"`
	EarnedRUB decimal.Decimal `json:"earned_rub"`
}
