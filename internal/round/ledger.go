package round

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/fair"
	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/lib/logger/sl"
)

var (
	// ErrDuplicateRound means a round with the same (game, nonce) already
	// exists. The existing record is never overwritten.
	ErrDuplicateRound     = errors.New("round already exists for nonce")
	ErrRoundNotFound      = errors.New("round not found")
	ErrInvalidTransition  = errors.New("round is not in the required status")
	ErrCommitmentMismatch = errors.New("round has no pending commitment")
)

type RoundStorage interface {
	NextNonce(game config.Game) (int64, error)
	SaveRound(round model.GameRound) (int64, error)
	FindRoundByUUID(uuid string) (*model.GameRound, error)
	GetRoundByID(id int64) (*model.GameRound, error)
	UpdateStatus(id int64, from config.RoundStatus, to config.RoundStatus) (int64, error)
	CloseRound(id int64, serverSeed string, crashPoint int64) (int64, error)
	FlagRound(id int64) error
}

type Committer interface {
	Commit() (fair.Commitment, error)
	Reveal(id string, status config.RoundStatus) (string, error)
}

type PendingBetSource interface {
	ListPendingBetsByRound(roundID int64) ([]model.Bet, error)
}

type BetSettler interface {
	SettleBet(betID int64, crashCents int64) (*model.Bet, error)
}

// Ledger drives rounds through OPEN, RUNNING, RESOLVING and CLOSED. Every
// transition is a guarded UPDATE so a terminal round can never move again.
type Ledger struct {
	log       *slog.Logger
	rounds    RoundStorage
	committer Committer
	bets      PendingBetSource
	settler   BetSettler

	mu          sync.Mutex
	commitments map[int64]string
	revealed    map[int64]string
}

func NewLedger(
	log *slog.Logger,
	rounds RoundStorage,
	committer Committer,
	bets PendingBetSource,
	settler BetSettler) *Ledger {
	return &Ledger{
		log:         log,
		rounds:      rounds,
		committer:   committer,
		bets:        bets,
		settler:     settler,
		commitments: make(map[int64]string),
		revealed:    make(map[int64]string),
	}
}

// Open allocates the next nonce for the game, publishes a fresh seed
// commitment and persists the round as OPEN. The secret stays with the
// commitment manager until Resolve.
func (l *Ledger) Open(game config.Game, clientSeed string) (*model.GameRound, error) {
	const op = "round.Ledger.Open"

	nonce, err := l.rounds.NextNonce(game)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	commitment, err := l.committer.Commit()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round := model.GameRound{
		UUID:       uuid.New(),
		Game:       game,
		Nonce:      nonce,
		Status:     config.RoundOpen,
		SeedHash:   commitment.SeedHash,
		ClientSeed: clientSeed,
	}

	round.ID, err = l.rounds.SaveRound(round)
	if err != nil {
		if mysql.IsDuplicateEntry(err) {
			return nil, fmt.Errorf("%s: %w", op, ErrDuplicateRound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	l.mu.Lock()
	l.commitments[round.ID] = commitment.ID
	l.mu.Unlock()

	l.log.Info("round opened",
		slog.String("game", string(game)),
		sl.Int64("nonce", nonce),
		slog.String("seed_hash", commitment.SeedHash),
	)

	return &round, nil
}

// Run moves an OPEN round to RUNNING, the only status that accepts bets.
func (l *Ledger) Run(roundUUID string) (*model.GameRound, error) {
	const op = "round.Ledger.Run"

	round, err := l.find(roundUUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := l.rounds.UpdateStatus(round.ID, config.RoundOpen, config.RoundRunning)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}

	round.Status = config.RoundRunning

	return round, nil
}

// Resolve closes out a RUNNING round: reveal and verify the committed seed,
// derive the crash point, settle every pending bet, then persist the reveal
// and the outcome. The round reaches CLOSED only after the last settlement;
// a failed reveal verification flags the round instead and freezes payouts.
// A round stuck in RESOLVING after a transient settlement failure can be
// resolved again: the revealed seed is held until the round closes.
func (l *Ledger) Resolve(roundUUID string) (*model.GameRound, error) {
	const op = "round.Ledger.Resolve"

	round, err := l.find(roundUUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if round.Status.Terminal() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}

	affected, err := l.rounds.UpdateStatus(round.ID, config.RoundRunning, config.RoundResolving)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 && round.Status != config.RoundResolving {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}

	round.Status = config.RoundResolving

	serverSeed, err := l.reveal(round)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	crash := fair.ComputeOutcome(serverSeed, round.ClientSeed, round.Nonce)

	// every bet settles before the round can close; settlement is
	// idempotent, so a retry after a partial failure picks up where it
	// stopped
	if err = l.settleAll(round.ID, crash); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	affected, err = l.rounds.CloseRound(round.ID, serverSeed, crash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTransition)
	}

	l.forget(round.ID)

	round.Status = config.RoundClosed
	round.ServerSeed = &serverSeed
	round.CrashPoint = &crash

	l.log.Info("round closed",
		slog.String("game", string(round.Game)),
		sl.Int64("nonce", round.Nonce),
		sl.Int64("crash_point", crash),
	)

	return round, nil
}

// reveal releases the round's server seed and checks it against the hash
// published at Open. Any mismatch, or a missing commitment, flags the round.
// A seed already revealed for this round is returned as-is; the manager
// hands each secret out only once, and the round still has to close with it.
func (l *Ledger) reveal(round *model.GameRound) (string, error) {
	l.mu.Lock()
	if seed, ok := l.revealed[round.ID]; ok {
		l.mu.Unlock()

		return seed, nil
	}

	commitmentID, ok := l.commitments[round.ID]
	l.mu.Unlock()

	if !ok {
		l.flag(round)

		return "", ErrCommitmentMismatch
	}

	serverSeed, err := l.committer.Reveal(commitmentID, round.Status)
	if err != nil {
		l.forget(round.ID)
		l.flag(round)

		return "", err
	}

	if !fair.Verify(serverSeed, round.SeedHash) {
		l.forget(round.ID)
		l.flag(round)

		return "", fair.ErrInvalidSeedReveal
	}

	l.mu.Lock()
	delete(l.commitments, round.ID)
	l.revealed[round.ID] = serverSeed
	l.mu.Unlock()

	return serverSeed, nil
}

func (l *Ledger) forget(roundID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.commitments, roundID)
	delete(l.revealed, roundID)
}

func (l *Ledger) settleAll(roundID int64, crash int64) error {
	pending, err := l.bets.ListPendingBetsByRound(roundID)
	if err != nil {
		return err
	}

	for _, bet := range pending {
		if _, err = l.settler.SettleBet(bet.ID, crash); err != nil {
			return err
		}
	}

	return nil
}

func (l *Ledger) find(roundUUID string) (*model.GameRound, error) {
	round, err := l.rounds.FindRoundByUUID(roundUUID)
	if err != nil {
		return nil, err
	}

	if round == nil {
		return nil, ErrRoundNotFound
	}

	return round, nil
}

func (l *Ledger) flag(round *model.GameRound) {
	if err := l.rounds.FlagRound(round.ID); err != nil {
		l.log.Error("failed to flag round", sl.Err(err), sl.Int64("round_id", round.ID))

		return
	}

	round.Status = config.RoundFlagged

	l.log.Error("round flagged, seed reveal failed verification",
		slog.String("game", string(round.Game)),
		sl.Int64("nonce", round.Nonce),
	)
}
