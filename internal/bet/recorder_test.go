package bet

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

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

type fakeRounds struct {
	mu     sync.Mutex
	rounds map[int64]*model.GameRound
}

func (f *fakeRounds) GetRoundByID(id int64) (*model.GameRound, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	round, ok := f.rounds[id]
	if !ok {
		return nil, nil
	}

	snapshot := *round

	return &snapshot, nil
}

func (f *fakeRounds) AddWager(tx *sql.Tx, roundID int64, wager int64, newPlayer bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	round := f.rounds[roundID]
	round.TotalBets++
	round.TotalWagered += wager

	if newPlayer {
		round.PlayerCount++
	}

	return nil
}

func (f *fakeRounds) AddPayout(tx *sql.Tx, roundID int64, payout int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rounds[roundID].TotalPayout += payout

	return nil
}

type fakeBets struct {
	mu        sync.Mutex
	nextID    int64
	deadlocks int
	bets      map[int64]*model.Bet
}

func newFakeBets() *fakeBets {
	return &fakeBets{bets: make(map[int64]*model.Bet)}
}

func (f *fakeBets) SaveBet(tx *sql.Tx, bet model.Bet) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deadlocks > 0 {
		f.deadlocks--

		return 0, &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}
	}

	f.nextID++
	bet.ID = f.nextID
	f.bets[bet.ID] = &bet

	return bet.ID, nil
}

func (f *fakeBets) GetBetByID(id int64) (*model.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bet, ok := f.bets[id]
	if !ok {
		return nil, nil
	}

	snapshot := *bet

	return &snapshot, nil
}

func (f *fakeBets) CountBetsByRoundAndUser(roundID int64, userID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0

	for _, bet := range f.bets {
		if bet.RoundID == roundID && bet.UserID == userID {
			count++
		}
	}

	return count, nil
}

func (f *fakeBets) MarkSettled(
	tx *sql.Tx,
	betID int64,
	result config.BetResult,
	multiplier *int64,
	payout *int64,
) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bet, ok := f.bets[betID]
	if !ok || bet.Result != config.BetPending {
		return 0, nil
	}

	bet.Result = result
	bet.Multiplier = multiplier
	bet.Payout = payout

	return 1, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestRecorder(initialBalance int64, roundStatus config.RoundStatus) (*Recorder, *fakeLedgerStore, *fakeRounds, *fakeBets) {
	log := slog.New(slog.NewTextHandler(nullWriter{}, nil))
	txm := fakeTxManager{}

	store := &fakeLedgerStore{balances: map[int64]*model.UserBalance{
		1: {UserID: 1, Balance: initialBalance},
	}}

	rounds := &fakeRounds{rounds: map[int64]*model.GameRound{
		1: {ID: 1, Game: config.Crash, Nonce: 5, Status: roundStatus},
	}}

	bets := newFakeBets()
	l := ledger.New(log, txm, store, store)

	return NewRecorder(log, txm, rounds, bets, l), store, rounds, bets
}

// The canonical flow: 100.00 balance, 50.00 bet, cashout 2.00x under a
// 2.50x crash, 100.00 payout, final balance 150.00.
func TestPlaceAndSettleWin(t *testing.T) {
	t.Parallel()

	recorder, store, rounds, _ := newTestRecorder(10000, config.RoundRunning)

	bet, err := recorder.PlaceBet(1, 1, 5000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.balances[1].Balance; got != 5000 {
		t.Fatalf("balance after wager, want: 5000, got: %d", got)
	}

	debit := store.saved[0]
	if debit.Amount != -5000 || debit.BalanceBefore != 10000 || debit.BalanceAfter != 5000 {
		t.Fatalf("unexpected debit entry: %+v", debit)
	}

	settled, err := recorder.SettleBet(bet.ID, 250)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if settled.Result != config.BetWin {
		t.Fatalf("expected win, got: %s", settled.Result)
	}

	if settled.Payout == nil || *settled.Payout != 10000 {
		t.Fatalf("unexpected payout: %+v", settled.Payout)
	}

	if got := store.balances[1].Balance; got != 15000 {
		t.Errorf("final balance, want: 15000, got: %d", got)
	}

	credit := store.saved[1]
	if credit.Reason != config.GameWin || credit.Amount != 10000 {
		t.Errorf("unexpected credit entry: %+v", credit)
	}

	if got := rounds.rounds[1].TotalPayout; got != 10000 {
		t.Errorf("round payout aggregate, want: 10000, got: %d", got)
	}
}

func TestSettleIdempotent(t *testing.T) {
	t.Parallel()

	recorder, store, _, _ := newTestRecorder(10000, config.RoundRunning)

	bet, err := recorder.PlaceBet(1, 1, 5000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err = recorder.SettleBet(bet.ID, 250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// settling again must not pay twice
	if _, err = recorder.SettleBet(bet.ID, 250); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.balances[1].Balance; got != 15000 {
		t.Errorf("double payout detected, balance: %d", got)
	}

	if len(store.saved) != 2 {
		t.Errorf("expected 2 ledger entries, got %d", len(store.saved))
	}
}

func TestSettleLoss(t *testing.T) {
	cases := []struct {
		name    string
		cashout int64
		crash   int64
	}{
		{
			name:    "CashoutAboveCrash",
			cashout: 300,
			crash:   250,
		},
		{
			name:    "CashoutEqualCrash",
			cashout: 250,
			crash:   250,
		},
		{
			name:    "NoCashoutDefined",
			cashout: 0,
			crash:   250,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			recorder, store, _, _ := newTestRecorder(10000, config.RoundRunning)

			bet, err := recorder.PlaceBet(1, 1, 5000, tc.cashout)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			settled, err := recorder.SettleBet(bet.ID, tc.crash)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if settled.Result != config.BetLoss {
				t.Fatalf("expected loss, got: %s", settled.Result)
			}

			// the wager debit is the only ledger entry
			if len(store.saved) != 1 {
				t.Errorf("expected 1 ledger entry, got %d", len(store.saved))
			}

			if got := store.balances[1].Balance; got != 5000 {
				t.Errorf("balance after loss, want: 5000, got: %d", got)
			}
		})
	}
}

func TestPlaceBetRejections(t *testing.T) {
	t.Parallel()

	recorder, _, _, _ := newTestRecorder(10000, config.RoundResolving)

	if _, err := recorder.PlaceBet(1, 1, 5000, 200); !errors.Is(err, ErrRoundNotRunning) {
		t.Errorf("expected ErrRoundNotRunning, got: %v", err)
	}

	if _, err := recorder.PlaceBet(1, 99, 5000, 200); !errors.Is(err, ErrRoundNotFound) {
		t.Errorf("expected ErrRoundNotFound, got: %v", err)
	}

	if _, err := recorder.PlaceBet(1, 1, 0, 200); !errors.Is(err, ErrInvalidWager) {
		t.Errorf("expected ErrInvalidWager, got: %v", err)
	}
}

func TestPlaceBetInsufficientFunds(t *testing.T) {
	t.Parallel()

	recorder, store, rounds, _ := newTestRecorder(4999, config.RoundRunning)

	if _, err := recorder.PlaceBet(1, 1, 5000, 200); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got: %v", err)
	}

	if got := store.balances[1].Balance; got != 4999 {
		t.Errorf("balance mutated on rejected bet: %d", got)
	}

	if got := rounds.rounds[1].TotalWagered; got != 0 {
		t.Errorf("aggregates mutated on rejected bet: %d", got)
	}
}

func TestPlaceBetRetriesDeadlock(t *testing.T) {
	t.Parallel()

	recorder, store, _, bets := newTestRecorder(10000, config.RoundRunning)
	bets.deadlocks = 1

	bet, err := recorder.PlaceBet(1, 1, 5000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.balances[1].Balance; got != 5000 {
		t.Errorf("balance after wager, want: 5000, got: %d", got)
	}

	// exactly one debit despite the retried attempt
	if len(store.saved) != 1 {
		t.Fatalf("want 1 ledger entry, got: %d", len(store.saved))
	}

	if len(bets.bets) != 1 {
		t.Errorf("want 1 bet row, got: %d", len(bets.bets))
	}

	if bets.bets[bet.ID].Result != config.BetPending {
		t.Errorf("expected pending bet, got: %s", bets.bets[bet.ID].Result)
	}
}

func TestPlaceBetDeadlockExhausted(t *testing.T) {
	t.Parallel()

	recorder, store, _, bets := newTestRecorder(10000, config.RoundRunning)
	bets.deadlocks = 3

	_, err := recorder.PlaceBet(1, 1, 5000, 200)
	if !errors.Is(err, ledger.ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got: %v", err)
	}

	if got := store.balances[1].Balance; got != 10000 {
		t.Errorf("balance must be untouched, got: %d", got)
	}

	if len(store.saved) != 0 {
		t.Errorf("no ledger entry may survive, got: %d", len(store.saved))
	}
}

func TestConcurrentPlacementsAggregate(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(nullWriter{}, nil))
	txm := fakeTxManager{}

	store := &fakeLedgerStore{balances: map[int64]*model.UserBalance{}}

	const users = 20

	for i := int64(1); i <= users; i++ {
		store.balances[i] = &model.UserBalance{UserID: i, Balance: 10000}
	}

	rounds := &fakeRounds{rounds: map[int64]*model.GameRound{
		1: {ID: 1, Game: config.Crash, Nonce: 5, Status: config.RoundRunning},
	}}

	recorder := NewRecorder(log, txm, rounds, newFakeBets(), ledger.New(log, txm, store, store))

	var wg sync.WaitGroup

	for i := int64(1); i <= users; i++ {
		i := i

		wg.Add(1)
		go func() {
			defer wg.Done()

			if _, err := recorder.PlaceBet(i, 1, 100*i, 200); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	// 100+200+...+100*users
	want := int64(100 * users * (users + 1) / 2)

	round := rounds.rounds[1]

	if round.TotalWagered != want {
		t.Errorf("lost wager increment, want: %d, got: %d", want, round.TotalWagered)
	}

	if round.TotalBets != users {
		t.Errorf("lost bet increment, want: %d, got: %d", users, round.TotalBets)
	}

	if round.PlayerCount != users {
		t.Errorf("lost player increment, want: %d, got: %d", users, round.PlayerCount)
	}
}
