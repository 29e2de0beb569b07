package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// NormalizeRole maps anything that is not "user" to assistant.
func NormalizeRole(role string) Role {
	if role == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// Part is one text fragment of a turn.
type Part struct {
	Text string `json:"text"`
}

// JoinParts flattens parts into a single string.
func JoinParts(parts []Part) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type Message struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Role       Role      `json:"role"`
	Content    []Part    `json:"content"`
	TokensUsed int64     `json:"tokens_used"`
	Cost       *float64  `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewMessage is a turn about to be persisted.
type NewMessage struct {
	Role       Role
	Content    []Part
	TokensUsed int64
	CostMicros *int64
}
