package config

type RoundStatus string

const (
	RoundOpen      RoundStatus = "open"
	RoundRunning   RoundStatus = "running"
	RoundResolving RoundStatus = "resolving"
	RoundClosed    RoundStatus = "closed"
	// RoundFlagged is terminal: the revealed seed did not match the published
	// commitment, payouts are frozen pending investigation.
	RoundFlagged RoundStatus = "flagged"
)

func (s RoundStatus) Terminal() bool {
	return s == RoundClosed || s == RoundFlagged
}
