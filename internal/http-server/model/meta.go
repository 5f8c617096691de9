package model

import (
	"encoding/json"
	"fmt"

	"go-fairplay/internal/config"
)

// Meta is the closed set of transaction payload variants. Each ledger reason
// carries a statically known shape instead of an open blob; the sealed
// metaKind method keeps the set closed to this package.
type Meta interface {
	metaKind() string
}

// GameMeta accompanies GAME_WIN / GAME_LOSS entries.
type GameMeta struct {
	Game       config.Game `json:"game"`
	RoundNonce int64       `json:"round_nonce"`
	BetID      int64       `json:"bet_id"`
}

// CouponMeta accompanies BONUS entries from coupon redemption.
type CouponMeta struct {
	Code string `json:"code"`
}

// AdminMeta accompanies ADMIN_ADJUSTMENT entries. AdminUUID comes from the
// upstream auth boundary, it is recorded but never verified here.
type AdminMeta struct {
	AdminUUID string `json:"admin_uuid"`
	Note      string `json:"note,omitempty"`
}

// TransferMeta accompanies DEPOSIT / WITHDRAWAL entries.
type TransferMeta struct {
	Reference string `json:"reference"`
}

func (GameMeta) metaKind() string     { return "game" }
func (CouponMeta) metaKind() string   { return "coupon" }
func (AdminMeta) metaKind() string    { return "admin" }
func (TransferMeta) metaKind() string { return "transfer" }

// EncodeMeta flattens a variant into its kind tag and JSON payload for the
// (meta_kind, meta) columns. A nil meta encodes to empty values.
func EncodeMeta(m Meta) (string, []byte, error) {
	const op = "model.EncodeMeta"

	if m == nil {
		return "", nil, nil
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return m.metaKind(), payload, nil
}

// DecodeMeta rebuilds the variant named by kind. Unknown kinds are rejected,
// the set is closed.
func DecodeMeta(kind string, payload []byte) (Meta, error) {
	const op = "model.DecodeMeta"

	if kind == "" {
		return nil, nil
	}

	var (
		m   Meta
		err error
	)

	switch kind {
	case "game":
		var v GameMeta
		err = json.Unmarshal(payload, &v)
		m = v
	case "coupon":
		var v CouponMeta
		err = json.Unmarshal(payload, &v)
		m = v
	case "admin":
		var v AdminMeta
		err = json.Unmarshal(payload, &v)
		m = v
	case "transfer":
		var v TransferMeta
		err = json.Unmarshal(payload, &v)
		m = v
	default:
		return nil, fmt.Errorf("%s: unknown meta kind %q", op, kind)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}
