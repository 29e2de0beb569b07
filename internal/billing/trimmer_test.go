package billing

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func turnsOf(lengths ...int) []Turn {
	turns := make([]Turn, len(lengths))
	for i, n := range lengths {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turns[i] = Turn{Role: role, Text: strings.Repeat("x", n)}
	}
	return turns
}

func TestTrimHistory(t *testing.T) {
	tests := []struct {
		name          string
		lengths       []int
		budget        int
		wantKept      int
		wantChars     int
		wantTruncated bool
	}{
		{name: "empty history", lengths: nil, budget: 100, wantKept: 0, wantChars: 0, wantTruncated: false},
		{name: "all fit", lengths: []int{10, 20, 30}, budget: 100, wantKept: 3, wantChars: 60, wantTruncated: false},
		{name: "exactly at budget", lengths: []int{40, 60}, budget: 100, wantKept: 2, wantChars: 100, wantTruncated: false},
		{name: "drops oldest", lengths: []int{50, 30, 40}, budget: 100, wantKept: 2, wantChars: 70, wantTruncated: true},
		{name: "single oversized newest turn kept", lengths: []int{5, 500}, budget: 100, wantKept: 1, wantChars: 500, wantTruncated: true},
		{name: "stops at first turn that does not fit", lengths: []int{1, 90, 20}, budget: 100, wantKept: 1, wantChars: 20, wantTruncated: true},
		{name: "zero length turns fit", lengths: []int{0, 0, 100}, budget: 100, wantKept: 3, wantChars: 100, wantTruncated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turns := turnsOf(tt.lengths...)
			got := TrimHistory(turns, tt.budget)

			assert.Len(t, got.Turns, tt.wantKept)
			assert.Equal(t, tt.wantChars, got.Chars)
			assert.Equal(t, tt.wantTruncated, got.Truncated)
			if tt.wantKept > 0 {
				assert.Equal(t, turns[len(turns)-tt.wantKept:], got.Turns)
			}
		})
	}
}

func TestTrimHistoryCountsRunes(t *testing.T) {
	turns := []Turn{{Role: "user", Text: "привет"}, {Role: "assistant", Text: "héllo"}}
	got := TrimHistory(turns, 11)
	assert.False(t, got.Truncated)
	assert.Equal(t, 11, got.Chars)
}

func TestTrimHistoryDoesNotAliasInput(t *testing.T) {
	turns := turnsOf(3, 3)
	got := TrimHistory(turns, 100)
	got.Turns[0].Text = "changed"
	assert.Equal(t, "xxx", turns[0].Text)
}

func TestTrimHistoryProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := rng.Intn(20)
		lengths := make([]int, n)
		sum := 0
		for j := range lengths {
			lengths[j] = rng.Intn(200)
			sum += lengths[j]
		}
		budget := rng.Intn(1500)
		turns := turnsOf(lengths...)

		got := TrimHistory(turns, budget)

		if sum <= budget {
			require.Equal(t, turns, append([]Turn{}, got.Turns...), "fitting history must be unchanged")
			require.False(t, got.Truncated)
			continue
		}

		require.True(t, got.Truncated, "over-budget history must report truncation")
		require.NotEmpty(t, got.Turns, "newest turn is always retained")
		require.Equal(t, turns[len(turns)-len(got.Turns):], got.Turns, "retained turns are a contiguous suffix")
		if len(got.Turns) > 1 {
			require.LessOrEqual(t, got.Chars, budget)
		}
	}
}
