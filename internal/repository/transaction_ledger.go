package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
)

// TransactionLedgerRepository owns the append-only transactions table.
// There is deliberately no update or delete here.
type TransactionLedgerRepository struct {
	dbhandler mysql.Handler
}

func NewTransactionLedgerRepository(dbhandler mysql.Handler) *TransactionLedgerRepository {
	return &TransactionLedgerRepository{dbhandler: dbhandler}
}

func (repo *TransactionLedgerRepository) SaveTransaction(tx *sql.Tx, txn model.Transaction) (int64, error) {
	const op = "repository.transaction_ledger.SaveTransaction"

	metaKind, metaPayload, err := model.EncodeMeta(txn.Meta)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	const query = "INSERT INTO transactions(user_id," +
		" seq," +
		" amount," +
		" balance_before," +
		" balance_after," +
		" reason," +
		" description," +
		" meta_kind," +
		" meta," +
		" created_at) " +
		"VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	res, err := tx.Exec(query,
		txn.UserID,
		txn.Seq,
		txn.Amount,
		txn.BalanceBefore,
		txn.BalanceAfter,
		txn.Reason,
		txn.Description,
		metaKind,
		metaPayload,
		time.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// ListTransactionsByUser returns the user's chain ordered by seq, oldest
// first, for replay and audit.
func (repo *TransactionLedgerRepository) ListTransactionsByUser(userID int64) ([]model.Transaction, error) {
	const op = "repository.transaction_ledger.ListTransactionsByUser"

	const query = "SELECT id, user_id, seq, amount, balance_before, balance_after, reason, description," +
		" meta_kind, meta, created_at " +
		"FROM transactions WHERE user_id = ? ORDER BY seq ASC"
	rows, err := repo.dbhandler.PrepareAndQuery(query, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var transactions []model.Transaction

	for rows.Next() {
		var (
			txn         model.Transaction
			metaKind    string
			metaPayload []byte
		)

		err = rows.Scan(&txn.ID,
			&txn.UserID,
			&txn.Seq,
			&txn.Amount,
			&txn.BalanceBefore,
			&txn.BalanceAfter,
			&txn.Reason,
			&txn.Description,
			&metaKind,
			&metaPayload,
			&txn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		txn.Meta, err = model.DecodeMeta(metaKind, metaPayload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		transactions = append(transactions, txn)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return transactions, nil
}
