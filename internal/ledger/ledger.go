package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/lib/logger/sl"
)

var (
	// ErrInsufficientFunds is returned with no mutation when a debit would
	// drive the balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrRetryExhausted is transient: the bounded deadlock retry ran out and
	// no partial write happened, the caller may retry.
	ErrRetryExhausted = errors.New("concurrent modification retry exhausted")
	ErrInvalidReason  = errors.New("invalid transaction reason")
)

const maxRetries = 3

//go:generate go run github.com/vektra/mockery/v2@v2.28.2 --name=TxManager
type TxManager interface {
	StartTransaction() (*sql.Tx, error)
	CommitTransaction(tx *sql.Tx) error
	RollbackTransaction(tx *sql.Tx) error
}

type BalanceStorage interface {
	FindBalanceForUpdate(tx *sql.Tx, userID int64) (*model.UserBalance, error)
	UpdateBalance(tx *sql.Tx, userID int64, balance int64, seq int64) error
}

type TransactionSaver interface {
	SaveTransaction(tx *sql.Tx, txn model.Transaction) (int64, error)
}

// Ledger is the sole writer of authoritative balance. Every balance effect
// is one transaction row plus one balance update inside one sql transaction;
// the two are never observable apart.
type Ledger struct {
	log          *slog.Logger
	txManager    TxManager
	balances     BalanceStorage
	transactions TransactionSaver

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex

	listenersMu sync.RWMutex
	listeners   []func(model.Transaction)
}

func New(
	log *slog.Logger,
	txManager TxManager,
	balances BalanceStorage,
	transactions TransactionSaver) *Ledger {
	return &Ledger{
		log:          log,
		txManager:    txManager,
		balances:     balances,
		transactions: transactions,
		locks:        make(map[int64]*sync.Mutex),
	}
}

// Subscribe registers a listener that sees every committed transaction.
// Listeners run after commit on the applying goroutine; they must not block.
func (l *Ledger) Subscribe(fn func(model.Transaction)) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()

	l.listeners = append(l.listeners, fn)
}

// Publish fans a committed transaction out to the listeners. Exposed for
// callers that compose ApplyInTx under their own commit.
func (l *Ledger) Publish(txn model.Transaction) {
	l.listenersMu.RLock()
	defer l.listenersMu.RUnlock()

	for _, fn := range l.listeners {
		fn(txn)
	}
}

func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	lock, ok := l.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[userID] = lock
	}

	return lock
}

// Serialize runs fn holding the user's mutex. Callers composing a bet or
// redemption around ApplyInTx use it to extend per-user serialization over
// the whole unit.
func (l *Ledger) Serialize(userID int64, fn func() error) error {
	lock := l.userLock(userID)

	lock.Lock()
	defer lock.Unlock()

	return fn()
}

// RetryOnDeadlock runs fn again after a storage deadlock, up to the bounded
// retry limit. fn must leave no partial writes behind when it fails. Any
// non-deadlock error passes through untouched.
func (l *Ledger) RetryOnDeadlock(fn func() error) error {
	const op = "ledger.RetryOnDeadlock"

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if !mysql.IsDeadlock(err) {
			return err
		}

		l.log.Warn("storage deadlock, retrying", slog.Int("attempt", attempt+1))
	}

	return fmt.Errorf("%s: %w", op, ErrRetryExhausted)
}

// Apply appends one ledger entry and moves the balance as one indivisible
// unit. Concurrent calls for the same user are serialized; different users
// proceed independently.
func (l *Ledger) Apply(
	userID int64,
	amount int64,
	reason config.Reason,
	description string,
	meta model.Meta,
) (*model.Transaction, error) {
	const op = "ledger.Apply"

	var (
		txn *model.Transaction
		err error
	)

	err = l.Serialize(userID, func() error {
		return l.RetryOnDeadlock(func() error {
			txn, err = l.applyOnce(userID, amount, reason, description, meta)

			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	l.Publish(*txn)

	return txn, nil
}

func (l *Ledger) applyOnce(
	userID int64,
	amount int64,
	reason config.Reason,
	description string,
	meta model.Meta,
) (*model.Transaction, error) {
	const op = "ledger.applyOnce"

	tx, err := l.txManager.StartTransaction()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	txn, err := l.ApplyInTx(tx, userID, amount, reason, description, meta)
	if err != nil {
		if rbErr := l.txManager.RollbackTransaction(tx); rbErr != nil {
			l.log.Error("failed to rollback ledger transaction", sl.Err(rbErr))
		}

		return nil, err
	}

	if err = l.txManager.CommitTransaction(tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return txn, nil
}

// ApplyInTx writes the ledger entry and balance update inside the caller's
// sql transaction. The caller must hold the user's lock via Serialize, and
// must Publish the returned transaction after a successful commit.
func (l *Ledger) ApplyInTx(
	tx *sql.Tx,
	userID int64,
	amount int64,
	reason config.Reason,
	description string,
	meta model.Meta,
) (*model.Transaction, error) {
	const op = "ledger.ApplyInTx"

	if !reason.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidReason)
	}

	balance, err := l.balances.FindBalanceForUpdate(tx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	after := balance.Balance + amount

	if after < 0 && !reason.AllowsOverdraft() {
		return nil, fmt.Errorf("%s: %w", op, ErrInsufficientFunds)
	}

	txn := model.Transaction{
		UserID:        userID,
		Seq:           balance.Seq + 1,
		Amount:        amount,
		BalanceBefore: balance.Balance,
		BalanceAfter:  after,
		Reason:        reason,
		Description:   description,
		Meta:          meta,
	}

	txn.ID, err = l.transactions.SaveTransaction(tx, txn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = l.balances.UpdateBalance(tx, userID, after, txn.Seq); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &txn, nil
}
