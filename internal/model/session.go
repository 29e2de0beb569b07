package model

import "time"

const DefaultSessionTitle = "New Chat"

type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ModelID   string    `json:"model_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateSessionRequest struct {
	ModelID string `json:"modelId"`
}
