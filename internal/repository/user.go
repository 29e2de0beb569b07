package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ultichat/internal/billing"
	"ultichat/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidAmount = errors.New("amount must be positive")
)

type UserRepositoryInterface interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	GetBalance(ctx context.Context, id string) (decimal.Decimal, error)
	Spend(ctx context.Context, id string, amount decimal.Decimal, description string) (decimal.Decimal, error)
	Deposit(ctx context.Context, id string, amount decimal.Decimal, description string) (decimal.Decimal, error)
}

var (
	_ UserRepositoryInterface = (*UserRepository)(nil)
	_ billing.Ledger          = (*UserRepository)(nil)
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, balance_micros, last_login, created_at, updated_at`

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, balance_micros, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.BalanceMicros, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&count)
	return count > 0, err
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var lastLogin sql.NullTime
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.BalanceMicros, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetBalance reads the current balance. The value is a snapshot; only Spend
// decides whether a debit fits.
func (r *UserRepository) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	var micros int64
	err := r.db.QueryRowContext(ctx, `SELECT balance_micros FROM users WHERE id = ?`, id).Scan(&micros)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrUserNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return billing.FromMicros(micros), nil
}

// Spend debits amount with a single conditional update and appends the
// spend entry in the same transaction. It returns billing.ErrInsufficientFunds
// when the balance at commit time is lower than amount, and ErrUserNotFound
// for an unknown account.
func (r *UserRepository) Spend(ctx context.Context, id string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	micros := billing.ToMicros(amount)
	if micros <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("spend: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var balance int64
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET balance_micros = balance_micros - ?, updated_at = ?
		 WHERE id = ? AND balance_micros >= ?
		 RETURNING balance_micros`,
		micros, now, id, micros,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, id).Scan(&count); err != nil {
			return decimal.Zero, fmt.Errorf("spend: lookup user: %w", err)
		}
		if count == 0 {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, billing.ErrInsufficientFunds
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("spend: debit: %w", err)
	}

	if err := insertTransaction(ctx, tx, id, -micros, model.TransactionSpend, description, now); err != nil {
		return decimal.Zero, fmt.Errorf("spend: insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("spend: commit: %w", err)
	}
	return billing.FromMicros(balance), nil
}

// Deposit credits amount and appends a deposit entry.
func (r *UserRepository) Deposit(ctx context.Context, id string, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	micros := billing.ToMicros(amount)
	if micros <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("deposit: begin tx: %w", err)
	}
	defer tx.Rollback()

	balance, err := creditTx(ctx, tx, id, micros, description, time.Now().UTC())
	if err != nil {
		return decimal.Zero, err
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("deposit: commit: %w", err)
	}
	return billing.FromMicros(balance), nil
}

func creditTx(ctx context.Context, tx *sql.Tx, userID string, micros int64, description string, now time.Time) (int64, error) {
	var balance int64
	err := tx.QueryRowContext(ctx,
		`UPDATE users SET balance_micros = balance_micros + ?, updated_at = ? WHERE id = ? RETURNING balance_micros`,
		micros, now, userID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit: %w", err)
	}

	if err := insertTransaction(ctx, tx, userID, micros, model.TransactionDeposit, description, now); err != nil {
		return 0, fmt.Errorf("credit: insert transaction: %w", err)
	}
	return balance, nil
}
