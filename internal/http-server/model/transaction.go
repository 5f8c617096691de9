package model

import (
	"time"

	"go-fairplay/internal/config"
)

// Transaction is one append-only ledger entry. Seq is monotonic per user and
// BalanceAfter = BalanceBefore + Amount always holds; consecutive entries of
// one user chain BalanceBefore onto the prior BalanceAfter. Rows are never
// updated or deleted.
type Transaction struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	Seq           int64         `json:"seq"`
	Amount        int64         `json:"amount"`
	BalanceBefore int64         `json:"balance_before"`
	BalanceAfter  int64         `json:"balance_after"`
	Reason        config.Reason `json:"reason"`
	Description   string        `json:"description,omitempty"`
	Meta          Meta          `json:"meta,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}
