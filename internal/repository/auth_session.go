package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"
)

var ErrAuthSessionNotFound = errors.New("auth session not found")

type AuthSessionRepositoryInterface interface {
	Upsert(ctx context.Context, token, userID string) error
	Touch(ctx context.Context, token string) error
}

var _ AuthSessionRepositoryInterface = (*AuthSessionRepository)(nil)

// AuthSessionRepository tracks issued bearer tokens by their sha256 digest.
type AuthSessionRepository struct {
	db *sql.DB
}

func NewAuthSessionRepository(db *sql.DB) *AuthSessionRepository {
	return &AuthSessionRepository{db: db}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (r *AuthSessionRepository) Upsert(ctx context.Context, token, userID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (token_hash, user_id, created_at, last_seen) VALUES (?, ?, ?, ?)
		 ON CONFLICT(token_hash) DO UPDATE SET last_seen = excluded.last_seen`,
		HashToken(token), userID, now, now,
	)
	return err
}

func (r *AuthSessionRepository) Touch(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auth_sessions SET last_seen = ? WHERE token_hash = ?`,
		time.Now().UTC(), HashToken(token),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAuthSessionNotFound
	}
	return nil
}
