package config

type BetResult string

const (
	BetPending BetResult = "pending"
	BetWin     BetResult = "win"
	BetLoss    BetResult = "loss"
)
