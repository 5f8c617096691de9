package config

type Reason string

const (
	GameWin         Reason = "GAME_WIN"
	GameLoss        Reason = "GAME_LOSS"
	DailyReward     Reason = "DAILY_REWARD"
	Bonus           Reason = "BONUS"
	Deposit         Reason = "DEPOSIT"
	Withdrawal      Reason = "WITHDRAWAL"
	AdminAdjustment Reason = "ADMIN_ADJUSTMENT"
	Referral        Reason = "REFERRAL"
)

func (r Reason) Valid() bool {
	switch r {
	case GameWin, GameLoss, DailyReward, Bonus, Deposit, Withdrawal, AdminAdjustment, Referral:
		return true
	}

	return false
}

// AllowsOverdraft reports whether a debit with this reason may drive the
// balance below zero.
func (r Reason) AllowsOverdraft() bool {
	return r == AdminAdjustment
}
