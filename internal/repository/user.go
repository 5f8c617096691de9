package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
)

type UserRepository struct {
	dbhandler mysql.Handler
}

func NewUserRepository(dbhandler mysql.Handler) *UserRepository {
	return &UserRepository{dbhandler: dbhandler}
}

func (repo *UserRepository) FindUserByUUID(uuid string) (*model.User, error) {
	const op = "repository.user.FindUserByUUID"

	const query = "SELECT id, uuid FROM users WHERE uuid = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, uuid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &model.User{}

	err = row.Scan(&user.ID, &user.UUID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (repo *UserRepository) GetUserByID(userID int64) (*model.User, error) {
	const op = "repository.user.GetUserByID"

	const query = "SELECT id, uuid FROM users WHERE id = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &model.User{}

	err = row.Scan(&user.ID, &user.UUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// FindBalanceForUpdate locks the user's balance row for the duration of tx.
// A user without a row yet gets a zero row first, so the lock always has
// something to grab.
func (repo *UserRepository) FindBalanceForUpdate(tx *sql.Tx, userID int64) (*model.UserBalance, error) {
	const op = "repository.user.FindBalanceForUpdate"

	const seed = "INSERT IGNORE INTO user_balances(user_id, balance, seq, updated_at) VALUES(?, 0, 0, ?)"
	if _, err := tx.Exec(seed, userID, time.Now()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	const query = "SELECT user_id, balance, seq FROM user_balances WHERE user_id = ? FOR UPDATE"
	row := tx.QueryRow(query, userID)

	userBalance := &model.UserBalance{}

	if err := row.Scan(&userBalance.UserID, &userBalance.Balance, &userBalance.Seq); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return userBalance, nil
}

func (repo *UserRepository) UpdateBalance(tx *sql.Tx, userID int64, balance int64, seq int64) error {
	const op = "repository.user.UpdateBalance"

	const query = "UPDATE user_balances SET balance = ?, seq = ?, updated_at = ? WHERE user_id = ?"
	if _, err := tx.Exec(query, balance, seq, time.Now(), userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (repo *UserRepository) FindUserBalanceByID(userID int64) (*model.UserBalance, error) {
	const op = "repository.user.FindUserBalanceByID"

	const query = "SELECT user_id, balance, seq, updated_at FROM user_balances WHERE user_id = ?"
	row, err := repo.dbhandler.PrepareAndQueryRow(query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	userBalance := &model.UserBalance{}

	err = row.Scan(&userBalance.UserID, &userBalance.Balance, &userBalance.Seq, &userBalance.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return userBalance, nil
}
