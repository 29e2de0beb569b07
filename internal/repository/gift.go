package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ultichat/internal/billing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrGiftCodeNotFound    = errors.New("gift code not found")
	ErrGiftAlreadyRedeemed = errors.New("gift code already redeemed")
)

type GiftRepositoryInterface interface {
	UpsertCode(ctx context.Context, code string, amount decimal.Decimal) error
	Redeem(ctx context.Context, code, userID string) (amount, balance decimal.Decimal, err error)
}

var _ GiftRepositoryInterface = (*GiftRepository)(nil)

type GiftRepository struct {
	db *sql.DB
}

func NewGiftRepository(db *sql.DB) *GiftRepository {
	return &GiftRepository{db: db}
}

func (r *GiftRepository) UpsertCode(ctx context.Context, code string, amount decimal.Decimal) error {
	micros := billing.ToMicros(amount)
	if micros <= 0 {
		return ErrInvalidAmount
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO gift_codes (code, amount_micros, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(code) DO UPDATE SET amount_micros = excluded.amount_micros`,
		code, micros, time.Now().UTC(),
	)
	return err
}

// Redeem records the redemption, credits the user and appends a deposit
// entry atomically. A code credits each user at most once.
func (r *GiftRepository) Redeem(ctx context.Context, code, userID string) (decimal.Decimal, decimal.Decimal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redeem: begin tx: %w", err)
	}
	defer tx.Rollback()

	var micros int64
	err = tx.QueryRowContext(ctx, `SELECT amount_micros FROM gift_codes WHERE code = ?`, code).Scan(&micros)
	if err == sql.ErrNoRows {
		return decimal.Zero, decimal.Zero, ErrGiftCodeNotFound
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redeem: lookup code: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO gift_redemptions (id, code, user_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(code, user_id) DO NOTHING`,
		uuid.New().String(), code, userID, now,
	)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redeem: record: %w", err)
	}
	if rows, err := result.RowsAffected(); err != nil {
		return decimal.Zero, decimal.Zero, err
	} else if rows == 0 {
		return decimal.Zero, decimal.Zero, ErrGiftAlreadyRedeemed
	}

	balance, err := creditTx(ctx, tx, userID, micros, "Gift code: "+code, now)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("redeem: commit: %w", err)
	}
	return billing.FromMicros(micros), billing.FromMicros(balance), nil
}
