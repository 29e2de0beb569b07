// Package provider calls the upstream chat model.
package provider

import (
	"context"
	"errors"
	"fmt"

	"ultichat/internal/billing"
	"ultichat/internal/model"

	"github.com/shopspring/decimal"
)

var ErrNoAPIKey = errors.New("no provider api key")

// Request is one non-streaming generation.
type Request struct {
	Model           string
	Messages        []billing.Turn
	MaxOutputTokens int64
	// APIKey overrides the configured key. Empty means use the configured key.
	APIKey string
}

type Completion struct {
	Reply        string
	Usage        *billing.Usage
	Cost         decimal.NullDecimal
	FinishReason string
}

// Limited reports whether the provider stopped on the output ceiling.
func (c *Completion) Limited() bool {
	return c.FinishReason == "length"
}

// Error is a non-success upstream answer. Status and Detail are passed
// through to the caller unchanged.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Detail)
}

type Generator interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
	HasAPIKey() bool
}

// ToUsage converts provider usage into the response shape.
func ToUsage(u *billing.Usage) *model.ChatUsage {
	if u == nil {
		return nil
	}
	return &model.ChatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
