package balance

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/http-server/model"
)

// ErrCorruptChain means the replayed transaction chain has a gap or a broken
// balance link; the ledger needs investigation before the value is trusted.
var ErrCorruptChain = errors.New("transaction chain is corrupt")

type TransactionLister interface {
	ListTransactionsByUser(userID int64) ([]model.Transaction, error)
}

type BalanceReader interface {
	FindUserBalanceByID(userID int64) (*model.UserBalance, error)
}

// Store is a derived, non-authoritative balance projection. It holds nothing
// the ledger cannot rebuild: every value is either the BalanceAfter of a
// committed transaction or the result of a full replay.
type Store struct {
	log          *slog.Logger
	cache        *cache.Cache
	transactions TransactionLister
	balances     BalanceReader
}

func New(log *slog.Logger, transactions TransactionLister, balances BalanceReader) *Store {
	return &Store{
		log:          log,
		cache:        cache.New(5*time.Minute, 10*time.Minute),
		transactions: transactions,
		balances:     balances,
	}
}

func cacheKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// OnTransaction keeps the projection in sync; wired as a ledger subscriber.
func (s *Store) OnTransaction(txn model.Transaction) {
	s.cache.Set(cacheKey(txn.UserID), txn.BalanceAfter, cache.DefaultExpiration)
}

// Balance returns the cached projection, falling back to a ledger replay on
// a miss.
func (s *Store) Balance(userID int64) (int64, error) {
	if v, found := s.cache.Get(cacheKey(userID)); found {
		return v.(int64), nil
	}

	return s.Rebuild(userID)
}

// Rebuild replays the user's chain from the ledger, validates its
// continuity and re-seeds the cache.
func (s *Store) Rebuild(userID int64) (int64, error) {
	const op = "balance.Store.Rebuild"

	transactions, err := s.transactions.ListTransactionsByUser(userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var (
		balance int64
		prevSeq int64
	)

	for i, txn := range transactions {
		if txn.BalanceBefore != balance || txn.BalanceAfter != txn.BalanceBefore+txn.Amount {
			s.log.Error("balance chain broken",
				slog.Int64("user_id", userID),
				slog.Int("entry", i))

			return 0, fmt.Errorf("%s: %w", op, ErrCorruptChain)
		}

		if txn.Seq != prevSeq+1 {
			return 0, fmt.Errorf("%s: %w", op, ErrCorruptChain)
		}

		balance = txn.BalanceAfter
		prevSeq = txn.Seq
	}

	stored, err := s.balances.FindUserBalanceByID(userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	// a commit may land between the chain read and the row read; only a
	// row at the same seq can contradict the replay
	if stored != nil && stored.Seq == prevSeq && stored.Balance != balance {
		s.log.Error("balance row diverged from replay",
			slog.Int64("user_id", userID),
			slog.Int64("stored", stored.Balance),
			slog.Int64("replayed", balance))

		return 0, fmt.Errorf("%s: %w", op, ErrCorruptChain)
	}

	s.cache.Set(cacheKey(userID), balance, cache.DefaultExpiration)

	return balance, nil
}
