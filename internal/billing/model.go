package billing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is the single affordability failure reported to
	// callers, whether it comes from the pre-call estimate or from settlement.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientFunds is returned by a Ledger when the conditional debit
	// finds less than the requested amount at commit time.
	ErrInsufficientFunds = errors.New("billing: insufficient funds at commit")
)

// Rates 单位: USD per token
type Rates struct {
	Input  decimal.Decimal `json:"inputRate"`
	Output decimal.Decimal `json:"outputRate"`
}

// NewRates builds rates from float USD-per-token values.
func NewRates(input, output float64) Rates {
	return Rates{Input: decimal.NewFromFloat(input), Output: decimal.NewFromFloat(output)}
}

// IsFree reports whether both rates are exactly zero.
func (r Rates) IsFree() bool {
	return r.Input.IsZero() && r.Output.IsZero()
}

// Usage is the provider-reported token usage.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Policy holds the budgeting constants.
type Policy struct {
	MinBalance          decimal.Decimal
	MaxPromptChars      int
	MinOutputTokens     int64
	HardCapOutputTokens int64
	SafetyMultiplier    decimal.Decimal
}

// Estimate is computed per request and never persisted.
type Estimate struct {
	PromptChars     int
	PromptTokens    int64
	PromptCost      decimal.Decimal
	MaxOutputTokens int64
	Limited         bool
}

// Turn is one role-tagged message flattened to text.
type Turn struct {
	Role string
	Text string
}
