package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
)

type BetRepository struct {
	dbhandler mysql.Handler
}

func NewBetRepository(dbhandler mysql.Handler) *BetRepository {
	return &BetRepository{dbhandler: dbhandler}
}

func (repo *BetRepository) SaveBet(tx *sql.Tx, bet model.Bet) (int64, error) {
	const op = "repository.bet.SaveBet"

	now := time.Now()

	const query = "INSERT INTO bets(uuid, user_id, round_id, game, wager, cashout, result, created_at, updated_at) " +
		"VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)"
	res, err := tx.Exec(query,
		bet.UUID,
		bet.UserID,
		bet.RoundID,
		bet.Game,
		bet.Wager,
		bet.CashoutCents,
		config.BetPending,
		now,
		now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

const betColumns = "id, uuid, user_id, round_id, game, wager, cashout, multiplier, payout, result, created_at, updated_at"

func (repo *BetRepository) scanBet(row *sql.Row) (*model.Bet, error) {
	bet := &model.Bet{}

	err := row.Scan(&bet.ID,
		&bet.UUID,
		&bet.UserID,
		&bet.RoundID,
		&bet.Game,
		&bet.Wager,
		&bet.CashoutCents,
		&bet.Multiplier,
		&bet.Payout,
		&bet.Result,
		&bet.CreatedAt,
		&bet.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return bet, nil
}

func (repo *BetRepository) GetBetByID(id int64) (*model.Bet, error) {
	const op = "repository.bet.GetBetByID"

	query := "SELECT " + betColumns + " FROM bets WHERE id = ?"

	row, err := repo.dbhandler.PrepareAndQueryRow(query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	bet, err := repo.scanBet(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bet, nil
}

func (repo *BetRepository) CountBetsByRoundAndUser(roundID int64, userID int64) (int, error) {
	const op = "repository.bet.CountBetsByRoundAndUser"

	const query = "SELECT COUNT(*) FROM bets WHERE round_id = ? AND user_id = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, roundID, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var count int

	if err = row.Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return count, nil
}

func (repo *BetRepository) ListPendingBetsByRound(roundID int64) ([]model.Bet, error) {
	const op = "repository.bet.ListPendingBetsByRound"

	query := "SELECT " + betColumns + " FROM bets WHERE round_id = ? AND result = ? ORDER BY id ASC"

	rows, err := repo.dbhandler.PrepareAndQuery(query, roundID, config.BetPending)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var bets []model.Bet

	for rows.Next() {
		var bet model.Bet

		err = rows.Scan(&bet.ID,
			&bet.UUID,
			&bet.UserID,
			&bet.RoundID,
			&bet.Game,
			&bet.Wager,
			&bet.CashoutCents,
			&bet.Multiplier,
			&bet.Payout,
			&bet.Result,
			&bet.CreatedAt,
			&bet.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		bets = append(bets, bet)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return bets, nil
}

// MarkSettled is the single permitted bet mutation. The result='pending'
// guard makes settlement idempotent: the second caller updates nothing and
// must not pay out.
func (repo *BetRepository) MarkSettled(
	tx *sql.Tx,
	betID int64,
	result config.BetResult,
	multiplier *int64,
	payout *int64,
) (int64, error) {
	const op = "repository.bet.MarkSettled"

	const query = "UPDATE bets SET result = ?, multiplier = ?, payout = ?, updated_at = ? " +
		"WHERE id = ? AND result = ?"
	res, err := tx.Exec(query, result, multiplier, payout, time.Now(), betID, config.BetPending)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return affected, nil
}
