package model

import (
	"time"
)

// Coupon invariants: 0 <= CurrentUses <= MaxUses, len(UsedBy) == CurrentUses
// and no user appears twice. UsedBy is materialized from the
// coupon_redemptions rows, the coupons row itself never stores the set.
type Coupon struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	RewardCents int64     `json:"reward"`
	MaxUses     int64     `json:"max_uses"`
	CurrentUses int64     `json:"current_uses"`
	UsedBy      []int64   `json:"used_by,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (c *Coupon) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *Coupon) Exhausted() bool {
	return c.CurrentUses >= c.MaxUses
}
