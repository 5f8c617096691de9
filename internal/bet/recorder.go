package bet

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/fair"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/lib/logger/sl"
)

var (
	ErrRoundNotFound = errors.New("round not found")
	// ErrRoundNotRunning rejects wagers once a round has left RUNNING.
	ErrRoundNotRunning = errors.New("round is not accepting bets")
	ErrBetNotFound     = errors.New("bet not found")
	ErrInvalidWager    = errors.New("wager must be positive")
)

type TxManager interface {
	StartTransaction() (*sql.Tx, error)
	CommitTransaction(tx *sql.Tx) error
	RollbackTransaction(tx *sql.Tx) error
}

type RoundSource interface {
	GetRoundByID(id int64) (*model.GameRound, error)
	AddWager(tx *sql.Tx, roundID int64, wager int64, newPlayer bool) error
	AddPayout(tx *sql.Tx, roundID int64, payout int64) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.28.2 --name=BetStorage
type BetStorage interface {
	SaveBet(tx *sql.Tx, bet model.Bet) (int64, error)
	GetBetByID(id int64) (*model.Bet, error)
	CountBetsByRoundAndUser(roundID int64, userID int64) (int, error)
	MarkSettled(tx *sql.Tx, betID int64, result config.BetResult, multiplier *int64, payout *int64) (int64, error)
}

type LedgerSource interface {
	Serialize(userID int64, fn func() error) error
	RetryOnDeadlock(fn func() error) error
	ApplyInTx(tx *sql.Tx, userID int64, amount int64, reason config.Reason, description string, meta model.Meta) (*model.Transaction, error)
	Publish(txn model.Transaction)
}

// Recorder owns Bet records: it creates them pending at wager time and
// mutates each exactly once at settlement.
type Recorder struct {
	log       *slog.Logger
	txManager TxManager
	rounds    RoundSource
	bets      BetStorage
	ledger    LedgerSource
}

func NewRecorder(
	log *slog.Logger,
	txManager TxManager,
	rounds RoundSource,
	bets BetStorage,
	ledger LedgerSource) *Recorder {
	return &Recorder{
		log:       log,
		txManager: txManager,
		rounds:    rounds,
		bets:      bets,
		ledger:    ledger,
	}
}

// PlaceBet debits the wager and creates the pending bet in one transaction.
// The wager debit, the bet row and the round aggregate increments commit
// together or not at all.
func (r *Recorder) PlaceBet(
	userID int64,
	roundID int64,
	wagerCents int64,
	cashoutCents int64,
) (*model.Bet, error) {
	const op = "bet.Recorder.PlaceBet"

	if wagerCents <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidWager)
	}

	round, err := r.rounds.GetRoundByID(roundID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if round == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrRoundNotFound)
	}

	if round.Status != config.RoundRunning {
		return nil, fmt.Errorf("%s: %w", op, ErrRoundNotRunning)
	}

	priorBets, err := r.bets.CountBetsByRoundAndUser(roundID, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bet := &model.Bet{
		UUID:         uuid.New(),
		UserID:       userID,
		RoundID:      roundID,
		Game:         round.Game,
		Wager:        wagerCents,
		CashoutCents: cashoutCents,
		Result:       config.BetPending,
	}

	var debit *model.Transaction

	err = r.ledger.Serialize(userID, func() error {
		return r.ledger.RetryOnDeadlock(func() error {
			tx, err := r.txManager.StartTransaction()
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			bet.ID, err = r.bets.SaveBet(tx, *bet)
			if err != nil {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, err)
			}

			debit, err = r.ledger.ApplyInTx(tx, userID, -wagerCents, config.GameLoss, "bet placed", model.GameMeta{
				Game:       round.Game,
				RoundNonce: round.Nonce,
				BetID:      bet.ID,
			})
			if err != nil {
				r.rollback(tx)

				return err
			}

			if err = r.rounds.AddWager(tx, roundID, wagerCents, priorBets == 0); err != nil {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, err)
			}

			return r.txManager.CommitTransaction(tx)
		})
	})
	if err != nil {
		return nil, err
	}

	r.ledger.Publish(*debit)

	return bet, nil
}

// SettleBet resolves one bet against the round's crash point. Idempotent: a
// bet that already left pending is returned unchanged and nothing is paid
// again.
func (r *Recorder) SettleBet(betID int64, crashCents int64) (*model.Bet, error) {
	const op = "bet.Recorder.SettleBet"

	bet, err := r.bets.GetBetByID(betID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if bet == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrBetNotFound)
	}

	if bet.Result != config.BetPending {
		return bet, nil
	}

	win := bet.CashoutCents >= fair.MinCrashCents && bet.CashoutCents < crashCents
	if !win {
		return r.settleLoss(bet)
	}

	return r.settleWin(bet)
}

func (r *Recorder) settleLoss(bet *model.Bet) (*model.Bet, error) {
	const op = "bet.Recorder.settleLoss"

	tx, err := r.txManager.StartTransaction()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// the wager debit from placement already stands, no ledger entry here
	if _, err = r.bets.MarkSettled(tx, bet.ID, config.BetLoss, nil, nil); err != nil {
		r.rollback(tx)

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = r.txManager.CommitTransaction(tx); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bet.Result = config.BetLoss

	return bet, nil
}

func (r *Recorder) settleWin(bet *model.Bet) (*model.Bet, error) {
	const op = "bet.Recorder.settleWin"

	round, err := r.rounds.GetRoundByID(bet.RoundID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if round == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrRoundNotFound)
	}

	multiplier := bet.CashoutCents
	payout := bet.Wager * multiplier / 100

	var credit *model.Transaction

	err = r.ledger.Serialize(bet.UserID, func() error {
		return r.ledger.RetryOnDeadlock(func() error {
			tx, err := r.txManager.StartTransaction()
			if err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}

			affected, err := r.bets.MarkSettled(tx, bet.ID, config.BetWin, &multiplier, &payout)
			if err != nil {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, err)
			}

			// lost the settlement race, someone already paid this bet
			if affected == 0 {
				r.rollback(tx)

				return nil
			}

			credit, err = r.ledger.ApplyInTx(tx, bet.UserID, payout, config.GameWin, "bet settled", model.GameMeta{
				Game:       bet.Game,
				RoundNonce: round.Nonce,
				BetID:      bet.ID,
			})
			if err != nil {
				r.rollback(tx)

				return err
			}

			if err = r.rounds.AddPayout(tx, bet.RoundID, payout); err != nil {
				r.rollback(tx)

				return fmt.Errorf("%s: %w", op, err)
			}

			return r.txManager.CommitTransaction(tx)
		})
	})
	if err != nil {
		return nil, err
	}

	if credit != nil {
		r.ledger.Publish(*credit)

		bet.Result = config.BetWin
		bet.Multiplier = &multiplier
		bet.Payout = &payout
	}

	return bet, nil
}

func (r *Recorder) rollback(tx *sql.Tx) {
	if err := r.txManager.RollbackTransaction(tx); err != nil {
		r.log.Error("failed to rollback transaction", sl.Err(err))
	}
}
