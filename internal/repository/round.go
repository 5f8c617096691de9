package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
)

type RoundRepository struct {
	dbhandler mysql.Handler
}

func NewRoundRepository(dbhandler mysql.Handler) *RoundRepository {
	return &RoundRepository{dbhandler: dbhandler}
}

// NextNonce allocates the next strictly increasing nonce for a game. The
// unique key on (game, nonce) catches allocation races at insert time.
func (repo *RoundRepository) NextNonce(game config.Game) (int64, error) {
	const op = "repository.round.NextNonce"

	const query = "SELECT COALESCE(MAX(nonce), 0) + 1 FROM game_rounds WHERE game = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, game)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var nonce int64

	if err = row.Scan(&nonce); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return nonce, nil
}

func (repo *RoundRepository) SaveRound(round model.GameRound) (int64, error) {
	const op = "repository.round.SaveRound"

	now := time.Now()

	const query = "INSERT INTO game_rounds(uuid," +
		" game," +
		" nonce," +
		" status," +
		" seed_hash," +
		" client_seed," +
		" created_at," +
		" updated_at) " +
		"VALUES(?, ?, ?, ?, ?, ?, ?, ?)"
	res, err := repo.dbhandler.PrepareAndExecute(query,
		round.UUID,
		round.Game,
		round.Nonce,
		round.Status,
		round.SeedHash,
		round.ClientSeed,
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

func (repo *RoundRepository) scanRound(row *sql.Row) (*model.GameRound, error) {
	round := &model.GameRound{}

	err := row.Scan(&round.ID,
		&round.UUID,
		&round.Game,
		&round.Nonce,
		&round.Status,
		&round.SeedHash,
		&round.ServerSeed,
		&round.ClientSeed,
		&round.CrashPoint,
		&round.TotalBets,
		&round.TotalWagered,
		&round.TotalPayout,
		&round.PlayerCount,
		&round.CreatedAt,
		&round.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return round, nil
}

const roundColumns = "id, uuid, game, nonce, status, seed_hash, server_seed, client_seed, crash_point," +
	" total_bets, total_wagered, total_payout, player_count, created_at, updated_at"

func (repo *RoundRepository) FindRoundByUUID(uuid string) (*model.GameRound, error) {
	const op = "repository.round.FindRoundByUUID"

	query := "SELECT " + roundColumns + " FROM game_rounds WHERE uuid = ?"

	row, err := repo.dbhandler.PrepareAndQueryRow(query, uuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round, err := repo.scanRound(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return round, nil
}

func (repo *RoundRepository) GetRoundByID(id int64) (*model.GameRound, error) {
	const op = "repository.round.GetRoundByID"

	query := "SELECT " + roundColumns + " FROM game_rounds WHERE id = ?"

	row, err := repo.dbhandler.PrepareAndQueryRow(query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	round, err := repo.scanRound(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return round, nil
}

// UpdateStatus moves a round between states only when it still is in the
// expected one; the returned count is 0 when someone else won the race or
// the round is already terminal.
func (repo *RoundRepository) UpdateStatus(id int64, from config.RoundStatus, to config.RoundStatus) (int64, error) {
	const op = "repository.round.UpdateStatus"

	const query = "UPDATE game_rounds SET status = ?, updated_at = ? WHERE id = ? AND status = ?"
	res, err := repo.dbhandler.PrepareAndExecute(query, to, time.Now(), id, from)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return affected, nil
}

// CloseRound writes the reveal data and the terminal status in one guarded
// update; a round that already left resolving stays untouched.
func (repo *RoundRepository) CloseRound(id int64, serverSeed string, crashPoint int64) (int64, error) {
	const op = "repository.round.CloseRound"

	const query = "UPDATE game_rounds SET status = ?, server_seed = ?, crash_point = ?, updated_at = ? " +
		"WHERE id = ? AND status = ?"
	res, err := repo.dbhandler.PrepareAndExecute(query,
		config.RoundClosed,
		serverSeed,
		crashPoint,
		time.Now(),
		id,
		config.RoundResolving)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return affected, nil
}

func (repo *RoundRepository) FlagRound(id int64) error {
	const op = "repository.round.FlagRound"

	const query = "UPDATE game_rounds SET status = ?, updated_at = ? WHERE id = ? AND status = ?"
	if _, err := repo.dbhandler.PrepareAndExecute(query, config.RoundFlagged, time.Now(), id, config.RoundResolving); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// AddWager bumps the round aggregates with atomic increments; many bettors
// contend on the same row so read-modify-write is off the table.
func (repo *RoundRepository) AddWager(tx *sql.Tx, roundID int64, wager int64, newPlayer bool) error {
	const op = "repository.round.AddWager"

	playerInc := int64(0)
	if newPlayer {
		playerInc = 1
	}

	const query = "UPDATE game_rounds SET total_bets = total_bets + 1," +
		" total_wagered = total_wagered + ?," +
		" player_count = player_count + ?," +
		" updated_at = ? " +
		"WHERE id = ?"
	if _, err := tx.Exec(query, wager, playerInc, time.Now(), roundID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (repo *RoundRepository) AddPayout(tx *sql.Tx, roundID int64, payout int64) error {
	const op = "repository.round.AddPayout"

	const query = "UPDATE game_rounds SET total_payout = total_payout + ?, updated_at = ? WHERE id = ?"
	if _, err := tx.Exec(query, payout, time.Now(), roundID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
