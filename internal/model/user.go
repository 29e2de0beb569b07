package model

import "time"

type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	BalanceMicros int64      `json:"-"`
	LastLogin     *time.Time `json:"last_login"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is the account view returned to its owner.
type Profile struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	UsdBalance float64    `json:"usd_balance"`
	LastLogin  *time.Time `json:"last_login"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AuthSession struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AuthResponse struct {
	User    *User        `json:"user"`
	Session *AuthSession `json:"session,omitempty"`
	Profile *Profile     `json:"profile"`
}
