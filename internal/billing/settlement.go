package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Ledger is the authoritative balance store. Spend must be a single
// conditional decrement-if-sufficient and return ErrInsufficientFunds when
// the balance at commit time is lower than amount.
type Ledger interface {
	GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	Spend(ctx context.Context, accountID string, amount decimal.Decimal, description string) (decimal.Decimal, error)
}

// SettleRequest describes one completed generation.
type SettleRequest struct {
	AccountID string
	Model     string
	Rates     Rates
	// ReportedCost is the provider's own figure, if it sent one.
	ReportedCost decimal.NullDecimal
	Usage        *Usage
	// PreBalance is the balance read before the call; invalid when the
	// balance check was skipped for a free model.
	PreBalance decimal.NullDecimal
}

// Settlement is the outcome of a successful settle.
type Settlement struct {
	Cost    decimal.Decimal
	Balance decimal.Decimal
	Charged bool
}

type Settler struct {
	ledger Ledger
}

func NewSettler(ledger Ledger) *Settler {
	return &Settler{ledger: ledger}
}

// ResolveCost prefers a non-negative provider-reported cost and otherwise
// prices the usage counts. No usage and no reported cost costs nothing.
func ResolveCost(reported decimal.NullDecimal, usage *Usage, rates Rates) decimal.Decimal {
	if reported.Valid && !reported.Decimal.IsNegative() {
		return reported.Decimal
	}
	if usage == nil {
		return decimal.Zero
	}

	// 负数 token 按 0 计
	prompt := max(usage.PromptTokens, 0)
	completion := max(usage.CompletionTokens, 0)

	return rates.Input.Mul(decimal.NewFromInt(prompt)).
		Add(rates.Output.Mul(decimal.NewFromInt(completion)))
}

// Description is the ledger text for a chat spend on model.
func Description(model string) string {
	return "Chat with " + model
}

// Settle resolves the realized cost and debits it. An insufficient-funds
// debit is reported as ErrInsufficientBalance; the caller must discard the
// generation. Nothing is refunded to or reclaimed from the provider.
func (s *Settler) Settle(ctx context.Context, req SettleRequest) (Settlement, error) {
	// Debit and report the same whole-micro amount.
	cost := FromMicros(ToMicros(ResolveCost(req.ReportedCost, req.Usage, req.Rates)))

	if !cost.IsPositive() {
		if req.PreBalance.Valid {
			return Settlement{Cost: decimal.Zero, Balance: req.PreBalance.Decimal}, nil
		}
		balance, err := s.ledger.GetBalance(ctx, req.AccountID)
		if err != nil {
			return Settlement{}, fmt.Errorf("billing: read balance: %w", err)
		}
		return Settlement{Cost: decimal.Zero, Balance: balance}, nil
	}

	balance, err := s.ledger.Spend(ctx, req.AccountID, cost, Description(req.Model))
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			log.WithFields(log.Fields{
				"account": req.AccountID,
				"model":   req.Model,
				"cost":    cost.String(),
			}).Warn("billing: debit rejected after generation")
			return Settlement{Cost: cost}, ErrInsufficientBalance
		}
		return Settlement{Cost: cost}, fmt.Errorf("billing: spend: %w", err)
	}

	log.Debugf("billing: settled account=%s model=%s cost=%s balance=%s",
		req.AccountID, req.Model, cost.String(), balance.String())

	return Settlement{Cost: cost, Balance: balance, Charged: true}, nil
}
