package coupon

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/lib/logger/sl"
)

var (
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrCouponInactive    = errors.New("coupon is not active")
	ErrCouponExpired     = errors.New("coupon has expired")
	ErrCouponExhausted   = errors.New("coupon has no uses left")
	ErrCouponAlreadyUsed = errors.New("coupon already redeemed by user")
)

type TxManager interface {
	StartTransaction() (*sql.Tx, error)
	CommitTransaction(tx *sql.Tx) error
	RollbackTransaction(tx *sql.Tx) error
}

type CouponStorage interface {
	SaveCoupon(coupon model.Coupon) (int64, error)
	FindCouponByCode(code string) (*model.Coupon, error)
	SaveRedemption(tx *sql.Tx, code string, userID int64) error
	ConsumeUse(tx *sql.Tx, code string, now time.Time) (int64, error)
}

type LedgerSource interface {
	Serialize(userID int64, fn func() error) error
	RetryOnDeadlock(fn func() error) error
	ApplyInTx(tx *sql.Tx, userID int64, amount int64, reason config.Reason, description string, meta model.Meta) (*model.Transaction, error)
	Publish(txn model.Transaction)
}

// Redeemer hands out coupon rewards at most max_uses times and at most once
// per user. Both caps are enforced by conditional writes inside one
// transaction, so concurrent redemptions cannot slip past either.
type Redeemer struct {
	log       *slog.Logger
	txManager TxManager
	coupons   CouponStorage
	ledger    LedgerSource

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewRedeemer(
	log *slog.Logger,
	txManager TxManager,
	coupons CouponStorage,
	ledger LedgerSource) *Redeemer {
	return &Redeemer{
		log:       log,
		txManager: txManager,
		coupons:   coupons,
		ledger:    ledger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Create registers a new coupon. Codes are stored upper-cased so redemption
// is case-insensitive.
func (r *Redeemer) Create(code string, rewardCents int64, maxUses int64, expiresAt time.Time) (*model.Coupon, error) {
	const op = "coupon.Redeemer.Create"

	coupon := model.Coupon{
		Code:        strings.ToUpper(code),
		RewardCents: rewardCents,
		MaxUses:     maxUses,
		ExpiresAt:   expiresAt,
		IsActive:    true,
	}

	id, err := r.coupons.SaveCoupon(coupon)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	coupon.ID = id

	return &coupon, nil
}

// Redeem credits the coupon reward to the user. One transaction claims the
// (coupon, user) pair, consumes a use and applies the credit; if any step
// refuses, nothing is kept.
func (r *Redeemer) Redeem(code string, userID int64) (*model.Transaction, error) {
	const op = "coupon.Redeemer.Redeem"

	code = strings.ToUpper(code)

	lock := r.codeLock(code)
	lock.Lock()
	defer lock.Unlock()

	coupon, err := r.coupons.FindCouponByCode(code)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if coupon == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrCouponNotFound)
	}

	var credit *model.Transaction

	err = r.ledger.Serialize(userID, func() error {
		return r.ledger.RetryOnDeadlock(func() error {
			tx, err := r.txManager.StartTransaction()
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			if err = r.coupons.SaveRedemption(tx, code, userID); err != nil {
				r.rollback(tx)

				if mysql.IsDuplicateEntry(err) {
					return fmt.Errorf("%s: %w", op, ErrCouponAlreadyUsed)
				}

				return fmt.Errorf("%s: %w", op, err)
			}

			affected, err := r.coupons.ConsumeUse(tx, code, time.Now())
			if err != nil {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, err)
			}

			if affected == 0 {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, r.classify(code))
			}

			credit, err = r.ledger.ApplyInTx(tx, userID, coupon.RewardCents, config.Bonus, "coupon redeemed", model.CouponMeta{
				Code: code,
			})
			if err != nil {
				r.rollback(tx)

				return err
			}

			return r.txManager.CommitTransaction(tx)
		})
	})
	if err != nil {
		return nil, err
	}

	r.ledger.Publish(*credit)

	r.log.Info("coupon redeemed",
		slog.String("code", code),
		sl.Int64("user_id", userID),
		sl.Int64("reward", credit.Amount),
	)

	return credit, nil
}

// classify reads the coupon after a refused ConsumeUse to tell the caller
// which precondition failed. The read never mutates anything.
func (r *Redeemer) classify(code string) error {
	coupon, err := r.coupons.FindCouponByCode(code)
	if err != nil {
		return err
	}

	switch {
	case coupon == nil:
		return ErrCouponNotFound
	case !coupon.IsActive:
		return ErrCouponInactive
	case coupon.Expired(time.Now()):
		return ErrCouponExpired
	case coupon.Exhausted():
		return ErrCouponExhausted
	default:
		// the precondition held by the time we re-read; treat as exhausted
		// rather than inventing a transient error the caller cannot act on
		return ErrCouponExhausted
	}
}

func (r *Redeemer) codeLock(code string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[code]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[code] = lock
	}

	return lock
}

func (r *Redeemer) rollback(tx *sql.Tx) {
	if err := r.txManager.RollbackTransaction(tx); err != nil {
		r.log.Error("failed to rollback transaction", sl.Err(err))
	}
}
