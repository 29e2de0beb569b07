package billing

import "unicode/utf8"

// TrimResult is the retained suffix of a history.
type TrimResult struct {
	Turns     []Turn
	Chars     int
	Truncated bool
}

// TrimHistory keeps the newest turns whose combined length fits budget.
// Turns are oldest first. The newest turn is always kept even when it alone
// exceeds the budget; the retained turns are a contiguous suffix in their
// original order.
func TrimHistory(turns []Turn, budget int) TrimResult {
	start := len(turns)
	total := 0
	for i := len(turns) - 1; i >= 0; i-- {
		n := utf8.RuneCountInString(turns[i].Text)
		if start < len(turns) && total+n > budget {
			break
		}
		total += n
		start = i
	}

	kept := make([]Turn, len(turns)-start)
	copy(kept, turns[start:])

	return TrimResult{
		Turns:     kept,
		Chars:     total,
		Truncated: len(kept) < len(turns),
	}
}
