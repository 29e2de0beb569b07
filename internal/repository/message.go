package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"ultichat/internal/billing"
	"ultichat/internal/model"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type MessageRepositoryInterface interface {
	SaveExchange(ctx context.Context, sessionID string, msgs ...model.NewMessage) error
	ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error)
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// SaveExchange appends msgs in order and bumps the session's updated_at,
// all in one transaction.
func (r *MessageRepository) SaveExchange(ctx context.Context, sessionID string, msgs ...model.NewMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save exchange: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range msgs {
		content, err := encodeParts(m.Content)
		if err != nil {
			return fmt.Errorf("save exchange: encode content: %w", err)
		}
		var cost sql.NullInt64
		if m.CostMicros != nil {
			cost = sql.NullInt64{Int64: *m.CostMicros, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (id, session_id, role, content, tokens_used, cost_micros, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sessionID, m.Role, content, m.TokensUsed, cost, now,
		); err != nil {
			return fmt.Errorf("save exchange: insert message: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`, now, sessionID,
	); err != nil {
		return fmt.Errorf("save exchange: touch session: %w", err)
	}

	return tx.Commit()
}

// ListBySession returns the transcript oldest first.
func (r *MessageRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, tokens_used, cost_micros, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*model.Message
	for rows.Next() {
		m := &model.Message{}
		var content string
		var cost sql.NullInt64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &content, &m.TokensUsed, &cost, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = decodeParts(content)
		if cost.Valid {
			v := billing.FromMicros(cost.Int64).InexactFloat64()
			m.Cost = &v
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// encodeParts builds the stored content document, an array of {"text"} parts.
func encodeParts(parts []model.Part) (string, error) {
	doc := "[]"
	for i, p := range parts {
		var err error
		doc, err = sjson.Set(doc, strconv.Itoa(i)+".text", p.Text)
		if err != nil {
			return "", err
		}
	}
	return doc, nil
}

// decodeParts accepts a JSON array of parts, a single part object, or plain text.
func decodeParts(raw string) []model.Part {
	if !gjson.Valid(raw) {
		return []model.Part{{Text: raw}}
	}
	doc := gjson.Parse(raw)
	switch {
	case doc.IsArray():
		parts := []model.Part{}
		doc.ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String {
				parts = append(parts, model.Part{Text: v.String()})
			} else {
				parts = append(parts, model.Part{Text: v.Get("text").String()})
			}
			return true
		})
		return parts
	case doc.IsObject():
		return []model.Part{{Text: doc.Get("text").String()}}
	case doc.Type == gjson.String:
		return []model.Part{{Text: doc.String()}}
	default:
		return []model.Part{{Text: raw}}
	}
}
