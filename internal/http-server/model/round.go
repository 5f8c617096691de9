package model

import (
	"time"

	"github.com/google/uuid"

	"go-fairplay/internal/config"
)

// GameRound is the persisted round record. (Game, Nonce) is unique and the
// nonce is strictly increasing per game. ServerSeed and CrashPoint stay NULL
// until the round resolves; once the status is terminal the row is never
// touched again.
type GameRound struct {
	ID           int64              `json:"id"`
	UUID         uuid.UUID          `json:"uuid"`
	Game         config.Game        `json:"game"`
	Nonce        int64              `json:"nonce"`
	Status       config.RoundStatus `json:"status"`
	SeedHash     string             `json:"seed_hash"`
	ServerSeed   *string            `json:"server_seed,omitempty"`
	ClientSeed   string             `json:"client_seed"`
	CrashPoint   *int64             `json:"crash_point,omitempty"`
	TotalBets    int64              `json:"total_bets"`
	TotalWagered int64              `json:"total_wagered"`
	TotalPayout  int64              `json:"total_payout"`
	PlayerCount  int64              `json:"player_count"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}
