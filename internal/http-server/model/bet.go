package model

import (
	"time"

	"github.com/google/uuid"

	"go-fairplay/internal/config"
)

// Bet is created pending at wager time and mutated exactly once at
// settlement. CashoutCents is the player's auto-cashout multiplier in cents
// (200 = 2.00x); Payout and Multiplier are filled on a win.
type Bet struct {
	ID           int64            `json:"id"`
	UUID         uuid.UUID        `json:"uuid"`
	UserID       int64            `json:"user_id"`
	RoundID      int64            `json:"round_id"`
	Game         config.Game      `json:"game"`
	Wager        int64            `json:"wager"`
	CashoutCents int64            `json:"cashout"`
	Multiplier   *int64           `json:"multiplier,omitempty"`
	Payout       *int64           `json:"payout,omitempty"`
	Result       config.BetResult `json:"result"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}
