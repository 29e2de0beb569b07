package repository

import (
	"context"
	"database/sql"
	"time"

	"ultichat/internal/model"

	"github.com/google/uuid"
)

type ChatSessionRepositoryInterface interface {
	Create(ctx context.Context, session *model.ChatSession) error
	GetByID(ctx context.Context, id string) (*model.ChatSession, error)
	ListByUser(ctx context.Context, userID string) ([]*model.ChatSession, error)
}

var _ ChatSessionRepositoryInterface = (*ChatSessionRepository)(nil)

type ChatSessionRepository struct {
	db *sql.DB
}

func NewChatSessionRepository(db *sql.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *model.ChatSession) error {
	session.ID = uuid.New().String()
	session.CreatedAt = time.Now().UTC()
	session.UpdatedAt = session.CreatedAt
	if session.Title == "" {
		session.Title = model.DefaultSessionTitle
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, user_id, model_id, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.ModelID, session.Title, session.CreatedAt, session.UpdatedAt,
	)
	return err
}

// GetByID returns nil, nil when the session does not exist.
func (r *ChatSessionRepository) GetByID(ctx context.Context, id string) (*model.ChatSession, error) {
	s := &model.ChatSession{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, model_id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.ModelID, &s.Title, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListByUser returns the user's sessions, most recently active first.
func (r *ChatSessionRepository) ListByUser(ctx context.Context, userID string) ([]*model.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, model_id, title, created_at, updated_at
		 FROM chat_sessions WHERE user_id = ? ORDER BY updated_at DESC, rowid DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*model.ChatSession
	for rows.Next() {
		s := &model.ChatSession{}
		if err := rows.Scan(&s.ID, &s.UserID, &s.ModelID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}
