package repository

import (
	"context"
	"database/sql"
	"time"

	"ultichat/internal/billing"
	"ultichat/internal/model"

	"github.com/google/uuid"
)

type TransactionRepositoryInterface interface {
	ListByType(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.Transaction, error)
}

var _ TransactionRepositoryInterface = (*TransactionRepository)(nil)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) ListByType(ctx context.Context, userID string, txType model.TransactionType, limit int) ([]*model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount_micros, type, description, created_at
		 FROM transactions WHERE user_id = ? AND type = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, txType, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*model.Transaction
	for rows.Next() {
		t := &model.Transaction{}
		if err := rows.Scan(&t.ID, &t.UserID, &t.AmountMicros, &t.Type, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount = billing.FromMicros(t.AmountMicros).InexactFloat64()
		result = append(result, t)
	}
	return result, rows.Err()
}

// insertTransaction appends a ledger entry inside tx. Spends are negative.
func insertTransaction(ctx context.Context, tx *sql.Tx, userID string, amountMicros int64, txType model.TransactionType, description string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, user_id, amount_micros, type, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), userID, amountMicros, txType, description, now,
	)
	return err
}
