package billing

import "github.com/shopspring/decimal"

const charsPerToken = 4

// Estimator derives the largest affordable reply before the provider is
// called. Cost errs high and the output ceiling errs low.
type Estimator struct {
	policy Policy
}

func NewEstimator(policy Policy) *Estimator {
	return &Estimator{policy: policy}
}

func (e *Estimator) Policy() Policy {
	return e.policy
}

// EstimatePromptTokens applies the chars-per-token heuristic, never below 1.
func EstimatePromptTokens(chars int) int64 {
	tokens := (int64(chars) + charsPerToken - 1) / charsPerToken
	if tokens < 1 {
		return 1
	}
	return tokens
}

// Estimate computes the output ceiling for a prompt of promptChars against
// balance. It returns ErrInsufficientBalance when fewer than the policy
// minimum of output tokens are affordable.
func (e *Estimator) Estimate(promptChars int, rates Rates, balance decimal.Decimal) (Estimate, error) {
	est := Estimate{PromptChars: promptChars}
	est.PromptTokens = EstimatePromptTokens(promptChars)
	est.PromptCost = rates.Input.Mul(decimal.NewFromInt(est.PromptTokens))

	var budgeted int64
	if rates.Output.IsPositive() {
		remaining := balance.Sub(est.PromptCost).Div(e.safetyMultiplier())
		budgeted = remaining.Div(rates.Output).Floor().IntPart()
	} else {
		budgeted = e.policy.HardCapOutputTokens
	}

	if budgeted < e.policy.MinOutputTokens {
		return est, ErrInsufficientBalance
	}

	est.MaxOutputTokens = min(max(budgeted, e.policy.MinOutputTokens), e.policy.HardCapOutputTokens)
	est.Limited = est.MaxOutputTokens < e.policy.HardCapOutputTokens
	return est, nil
}

func (e *Estimator) safetyMultiplier() decimal.Decimal {
	if e.policy.SafetyMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		return e.policy.SafetyMultiplier
	}
	return decimal.NewFromInt(1)
}
