package model

import "time"

type TransactionType string

const (
	TransactionSpend   TransactionType = "spend"
	TransactionDeposit TransactionType = "deposit"
)

// Transaction is an append-only ledger entry. Spends carry negative amounts.
type Transaction struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	AmountMicros int64           `json:"-"`
	Amount       float64         `json:"amount"`
	Type         TransactionType `json:"type"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

// SpendItem is one row of the spend history view.
type SpendItem struct {
	CreatedAt time.Time `json:"created_at"`
	Model     string    `json:"model"`
	Amount    float64   `json:"amount"`
}

type RedeemGiftRequest struct {
	Code string `json:"code"`
}

type RedeemGiftResponse struct {
	Amount  float64 `json:"amount"`
	Balance float64 `json:"balance"`
	Message string  `json:"message"`
}
