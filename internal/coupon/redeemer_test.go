package coupon

import (
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/ledger"
)

type fakeTxManager struct{}

func (fakeTxManager) StartTransaction() (*sql.Tx, error)   { return nil, nil }
func (fakeTxManager) CommitTransaction(tx *sql.Tx) error   { return nil }
func (fakeTxManager) RollbackTransaction(tx *sql.Tx) error { return nil }

type fakeLedgerStore struct {
	mu       sync.Mutex
	balances map[int64]*model.UserBalance
	saved    []model.Transaction
}

func (f *fakeLedgerStore) FindBalanceForUpdate(tx *sql.Tx, userID int64) (*model.UserBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance, ok := f.balances[userID]
	if !ok {
		balance = &model.UserBalance{UserID: userID}
		f.balances[userID] = balance
	}

	snapshot := *balance

	return &snapshot, nil
}

func (f *fakeLedgerStore) UpdateBalance(tx *sql.Tx, userID int64, balance int64, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[userID] = &model.UserBalance{UserID: userID, Balance: balance, Seq: seq}

	return nil
}

func (f *fakeLedgerStore) SaveTransaction(tx *sql.Tx, txn model.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saved = append(f.saved, txn)

	return int64(len(f.saved)), nil
}

type redemptionKey struct {
	code   string
	userID int64
}

type fakeCoupons struct {
	mu          sync.Mutex
	nextID      int64
	deadlocks   int
	coupons     map[string]*model.Coupon
	redemptions map[redemptionKey]struct{}
}

func newFakeCoupons() *fakeCoupons {
	return &fakeCoupons{
		coupons:     make(map[string]*model.Coupon),
		redemptions: make(map[redemptionKey]struct{}),
	}
}

func (f *fakeCoupons) SaveCoupon(coupon model.Coupon) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.coupons[coupon.Code]; ok {
		return 0, &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}

	f.nextID++
	coupon.ID = f.nextID
	f.coupons[coupon.Code] = &coupon

	return coupon.ID, nil
}

func (f *fakeCoupons) FindCouponByCode(code string) (*model.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	coupon, ok := f.coupons[code]
	if !ok {
		return nil, nil
	}

	snapshot := *coupon

	return &snapshot, nil
}

func (f *fakeCoupons) SaveRedemption(tx *sql.Tx, code string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deadlocks > 0 {
		f.deadlocks--

		return &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}
	}

	key := redemptionKey{code: code, userID: userID}

	if _, ok := f.redemptions[key]; ok {
		return &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}

	f.redemptions[key] = struct{}{}

	return nil
}

func (f *fakeCoupons) ConsumeUse(tx *sql.Tx, code string, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	coupon, ok := f.coupons[code]
	if !ok || !coupon.IsActive || !coupon.ExpiresAt.After(now) || coupon.CurrentUses >= coupon.MaxUses {
		return 0, nil
	}

	coupon.CurrentUses++

	return 1, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestRedeemer() (*Redeemer, *fakeCoupons, *fakeLedgerStore) {
	log := slog.New(slog.NewTextHandler(nullWriter{}, nil))
	txm := fakeTxManager{}
	store := &fakeLedgerStore{balances: make(map[int64]*model.UserBalance)}
	coupons := newFakeCoupons()

	return NewRedeemer(log, txm, coupons, ledger.New(log, txm, store, store)), coupons, store
}

func TestRedeemCreditsReward(t *testing.T) {
	t.Parallel()

	redeemer, _, store := newTestRedeemer()

	if _, err := redeemer.Create("welcome10", 1000, 5, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// lower-cased input must hit the upper-cased code
	credit, err := redeemer.Redeem("welcome10", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if credit.Amount != 1000 || credit.Reason != config.Bonus {
		t.Fatalf("unexpected credit: %+v", credit)
	}

	meta, ok := credit.Meta.(model.CouponMeta)
	if !ok || meta.Code != "WELCOME10" {
		t.Errorf("unexpected meta: %+v", credit.Meta)
	}

	if got := store.balances[1].Balance; got != 1000 {
		t.Errorf("balance after redeem, want: 1000, got: %d", got)
	}
}

func TestRedeemTwiceSameUser(t *testing.T) {
	t.Parallel()

	redeemer, _, store := newTestRedeemer()

	if _, err := redeemer.Create("REPEAT", 500, 10, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := redeemer.Redeem("REPEAT", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := redeemer.Redeem("REPEAT", 1); !errors.Is(err, ErrCouponAlreadyUsed) {
		t.Fatalf("expected ErrCouponAlreadyUsed, got: %v", err)
	}

	if got := store.balances[1].Balance; got != 500 {
		t.Errorf("reward paid twice, balance: %d", got)
	}
}

func TestRedeemClassification(t *testing.T) {
	redeemer, coupons, _ := newTestRedeemer()

	if _, err := redeemer.Create("INACTIVE", 100, 5, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coupons.coupons["INACTIVE"].IsActive = false

	if _, err := redeemer.Create("EXPIRED", 100, 5, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := redeemer.Create("DRAINED", 100, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := redeemer.Redeem("DRAINED", 99); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name string
		code string
		want error
	}{
		{
			name: "UnknownCode",
			code: "NOSUCH",
			want: ErrCouponNotFound,
		},
		{
			name: "Inactive",
			code: "INACTIVE",
			want: ErrCouponInactive,
		},
		{
			name: "Expired",
			code: "EXPIRED",
			want: ErrCouponExpired,
		},
		{
			name: "Exhausted",
			code: "DRAINED",
			want: ErrCouponExhausted,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := redeemer.Redeem(tc.code, 1); !errors.Is(err, tc.want) {
				t.Errorf("want: %v, got: %v", tc.want, err)
			}
		})
	}
}

func TestRedeemRetriesDeadlock(t *testing.T) {
	t.Parallel()

	redeemer, coupons, store := newTestRedeemer()

	if _, err := redeemer.Create("WELCOME", 2500, 10, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coupons.deadlocks = 1

	credit, err := redeemer.Redeem("WELCOME", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if credit.Amount != 2500 || credit.BalanceAfter != 2500 {
		t.Fatalf("unexpected credit: %+v", credit)
	}

	// one use consumed, one ledger entry, despite the retried attempt
	if got := coupons.coupons["WELCOME"].CurrentUses; got != 1 {
		t.Errorf("current_uses, want: 1, got: %d", got)
	}

	if len(store.saved) != 1 {
		t.Errorf("want 1 ledger entry, got: %d", len(store.saved))
	}
}

func TestRedeemDeadlockExhausted(t *testing.T) {
	t.Parallel()

	redeemer, coupons, store := newTestRedeemer()

	if _, err := redeemer.Create("WELCOME", 2500, 10, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coupons.deadlocks = 3

	_, err := redeemer.Redeem("WELCOME", 1)
	if !errors.Is(err, ledger.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got: %v", err)
	}

	if got := coupons.coupons["WELCOME"].CurrentUses; got != 0 {
		t.Errorf("no use may be consumed, got: %d", got)
	}

	if len(store.saved) != 0 {
		t.Errorf("no ledger entry may survive, got: %d", len(store.saved))
	}
}

func TestConcurrentRedemptionSingleUse(t *testing.T) {
	t.Parallel()

	redeemer, coupons, store := newTestRedeemer()

	if _, err := redeemer.Create("GOLDEN", 2500, 1, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const users = 10

	var (
		wg        sync.WaitGroup
		successMu sync.Mutex
		successes int
	)

	for i := int64(1); i <= users; i++ {
		i := i

		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := redeemer.Redeem("GOLDEN", i)
			if err == nil {
				successMu.Lock()
				successes++
				successMu.Unlock()

				return
			}

			if !errors.Is(err, ErrCouponExhausted) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one redemption, got: %d", successes)
	}

	if got := coupons.coupons["GOLDEN"].CurrentUses; got != 1 {
		t.Errorf("current_uses, want: 1, got: %d", got)
	}

	var total int64

	for _, balance := range store.balances {
		total += balance.Balance
	}

	if total != 2500 {
		t.Errorf("total credited, want: 2500, got: %d", total)
	}
}
