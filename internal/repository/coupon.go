package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
)

type CouponRepository struct {
	dbhandler mysql.Handler
}

func NewCouponRepository(dbhandler mysql.Handler) *CouponRepository {
	return &CouponRepository{dbhandler: dbhandler}
}

func (repo *CouponRepository) SaveCoupon(coupon model.Coupon) (int64, error) {
	const op = "repository.coupon.SaveCoupon"

	const query = "INSERT INTO coupons(code, reward, max_uses, current_uses, expires_at, is_active, created_at) " +
		"VALUES(?, ?, ?, 0, ?, ?, ?)"
	res, err := repo.dbhandler.PrepareAndExecute(query,
		coupon.Code,
		coupon.RewardCents,
		coupon.MaxUses,
		coupon.ExpiresAt,
		coupon.IsActive,
		time.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

func (repo *CouponRepository) FindCouponByCode(code string) (*model.Coupon, error) {
	const op = "repository.coupon.FindCouponByCode"

	const query = "SELECT id, code, reward, max_uses, current_uses, expires_at, is_active, created_at " +
		"FROM coupons WHERE code = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	coupon := &model.Coupon{}

	err = row.Scan(&coupon.ID,
		&coupon.Code,
		&coupon.RewardCents,
		&coupon.MaxUses,
		&coupon.CurrentUses,
		&coupon.ExpiresAt,
		&coupon.IsActive,
		&coupon.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return coupon, nil
}

func (repo *CouponRepository) ListRedeemers(code string) ([]int64, error) {
	const op = "repository.coupon.ListRedeemers"

	const query = "SELECT user_id FROM coupon_redemptions WHERE coupon_code = ? ORDER BY id ASC"
	rows, err := repo.dbhandler.PrepareAndQuery(query, code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var users []int64

	for rows.Next() {
		var userID int64

		if err = rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		users = append(users, userID)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// SaveRedemption claims the (coupon, user) pair. The unique key makes a
// repeat redemption fail with a duplicate-entry error instead of a second
// row.
func (repo *CouponRepository) SaveRedemption(tx *sql.Tx, code string, userID int64) error {
	const op = "repository.coupon.SaveRedemption"

	const query = "INSERT INTO coupon_redemptions(coupon_code, user_id, created_at) VALUES(?, ?, ?)"
	if _, err := tx.Exec(query, code, userID, time.Now()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ConsumeUse is the conditional write that makes over-redemption
// structurally impossible: the increment only lands while every
// precondition still holds at write time.
func (repo *CouponRepository) ConsumeUse(tx *sql.Tx, code string, now time.Time) (int64, error) {
	const op = "repository.coupon.ConsumeUse"

	const query = "UPDATE coupons SET current_uses = current_uses + 1 " +
		"WHERE code = ? AND is_active = 1 AND expires_at > ? AND current_uses < max_uses"
	res, err := tx.Exec(query, code, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return affected, nil
}
