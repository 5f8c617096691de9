package ledger

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/model"
)

type fakeTxManager struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (f *fakeTxManager) StartTransaction() (*sql.Tx, error) { return nil, nil }

func (f *fakeTxManager) CommitTransaction(tx *sql.Tx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.commits++

	return nil
}

func (f *fakeTxManager) RollbackTransaction(tx *sql.Tx) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rollbacks++

	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	balances  map[int64]*model.UserBalance
	saved     []model.Transaction
	saveErr   error
	deadlocks int
}

func newFakeStore() *fakeStore {
	return &fakeStore{balances: make(map[int64]*model.UserBalance)}
}

func (f *fakeStore) FindBalanceForUpdate(tx *sql.Tx, userID int64) (*model.UserBalance, error) {
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

func (f *fakeStore) UpdateBalance(tx *sql.Tx, userID int64, balance int64, seq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[userID] = &model.UserBalance{UserID: userID, Balance: balance, Seq: seq}

	return nil
}

func (f *fakeStore) SaveTransaction(tx *sql.Tx, txn model.Transaction) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deadlocks > 0 {
		f.deadlocks--

		return 0, &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}
	}

	if f.saveErr != nil {
		return 0, f.saveErr
	}

	f.saved = append(f.saved, txn)

	return int64(len(f.saved)), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, nil))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestLedger() (*Ledger, *fakeStore, *fakeTxManager) {
	store := newFakeStore()
	txm := &fakeTxManager{}

	return New(discardLogger(), txm, store, store), store, txm
}

func TestApplyChain(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	amounts := []int64{10000, -5000, 2500, -100, 7600}

	var sum int64

	for _, amount := range amounts {
		reason := config.Deposit
		if amount < 0 {
			reason = config.GameLoss
		}

		if _, err := l.Apply(1, amount, reason, "", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sum += amount
	}

	if got := store.balances[1].Balance; got != sum {
		t.Errorf("final balance mismatch, want: %d, got: %d", sum, got)
	}

	var prev *model.Transaction

	for i := range store.saved {
		txn := store.saved[i]

		if txn.BalanceAfter != txn.BalanceBefore+txn.Amount {
			t.Errorf("entry %d breaks balance invariant", i)
		}

		if prev != nil {
			if txn.Seq != prev.Seq+1 {
				t.Errorf("entry %d breaks seq monotonicity", i)
			}

			if txn.BalanceBefore != prev.BalanceAfter {
				t.Errorf("entry %d breaks the chain", i)
			}
		}

		prev = &store.saved[i]
	}
}

func TestApplyInsufficientFunds(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	if _, err := l.Apply(1, 5000, config.Deposit, "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := l.Apply(1, -5001, config.Withdrawal, "", nil)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}

	// no mutation on failure
	if got := store.balances[1].Balance; got != 5000 {
		t.Errorf("balance mutated on failed debit: %d", got)
	}

	if len(store.saved) != 1 {
		t.Errorf("transaction row written on failed debit")
	}
}

func TestApplyAdminOverdraft(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	txn, err := l.Apply(1, -2500, config.AdminAdjustment, "chargeback", model.AdminMeta{AdminUUID: "a-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if txn.BalanceAfter != -2500 {
		t.Errorf("unexpected balance after, want: -2500, got: %d", txn.BalanceAfter)
	}

	if store.balances[1].Balance != -2500 {
		t.Errorf("balance row not updated")
	}
}

func TestApplyInvalidReason(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	if _, err := l.Apply(1, 100, config.Reason("TIP"), "", nil); !errors.Is(err, ErrInvalidReason) {
		t.Fatalf("expected ErrInvalidReason, got: %v", err)
	}

	if len(store.saved) != 0 {
		t.Error("transaction row written for invalid reason")
	}
}

func TestApplyConcurrentSameUser(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	const workers = 100

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := l.Apply(1, 100, config.Deposit, "", nil); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	if got := store.balances[1].Balance; got != workers*100 {
		t.Errorf("lost update: want %d, got %d", workers*100, got)
	}

	if got := store.balances[1].Seq; got != workers {
		t.Errorf("seq mismatch: want %d, got %d", workers, got)
	}

	seen := make(map[int64]bool, workers)

	for _, txn := range store.saved {
		if seen[txn.Seq] {
			t.Fatalf("duplicate seq %d", txn.Seq)
		}

		seen[txn.Seq] = true
	}
}

func TestApplyRollbackOnSaveError(t *testing.T) {
	t.Parallel()

	l, store, txm := newTestLedger()

	store.saveErr = errors.New("boom")

	if _, err := l.Apply(1, 100, config.Deposit, "", nil); err == nil {
		t.Fatal("expected error, got nil")
	}

	if txm.rollbacks != 1 {
		t.Errorf("expected one rollback, got %d", txm.rollbacks)
	}

	if txm.commits != 0 {
		t.Errorf("commit happened despite save failure")
	}
}

func TestApplyRetriesDeadlock(t *testing.T) {
	t.Parallel()

	l, store, txm := newTestLedger()

	store.deadlocks = 2

	txn, err := l.Apply(1, 100, config.Deposit, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if txn.BalanceAfter != 100 || txn.Seq != 1 {
		t.Fatalf("unexpected entry: %+v", txn)
	}

	if len(store.saved) != 1 {
		t.Errorf("want 1 ledger entry, got: %d", len(store.saved))
	}

	if txm.rollbacks != 2 || txm.commits != 1 {
		t.Errorf("expected 2 rollbacks and 1 commit, got %d and %d", txm.rollbacks, txm.commits)
	}
}

func TestApplyDeadlockExhausted(t *testing.T) {
	t.Parallel()

	l, store, _ := newTestLedger()

	store.deadlocks = 3

	if _, err := l.Apply(1, 100, config.Deposit, "", nil); !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got: %v", err)
	}

	if len(store.saved) != 0 {
		t.Errorf("no ledger entry may survive, got: %d", len(store.saved))
	}
}

func TestSubscribe(t *testing.T) {
	t.Parallel()

	l, _, _ := newTestLedger()

	var (
		mu   sync.Mutex
		seen []model.Transaction
	)

	l.Subscribe(func(txn model.Transaction) {
		mu.Lock()
		defer mu.Unlock()

		seen = append(seen, txn)
	})

	if _, err := l.Apply(7, 100, config.Bonus, "", model.CouponMeta{Code: "WELCOME"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 1 {
		t.Fatalf("expected one notification, got %d", len(seen))
	}

	if seen[0].UserID != 7 || seen[0].Reason != config.Bonus {
		t.Errorf("unexpected notification payload: %+v", seen[0])
	}
}
