package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        int64     `json:"id"`
	UUID      uuid.UUID `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
}

// UserBalance is the authoritative balance row maintained by the ledger in
// the same transaction as every ledger entry. Seq mirrors the latest
// transaction seq of the user.
type UserBalance struct {
	UserID    int64      `json:"user_id"`
	Balance   int64      `json:"balance"`
	Seq       int64      `json:"seq"`
	UpdatedAt *time.Time `json:"updated_at"`
}
