package billing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceTableRateFor(t *testing.T) {
	fallback := NewRates(1.0/1_000_000, 2.0/1_000_000)
	table := NewPriceTable(map[string]Rates{
		"openai/gpt-4o-mini":   NewRates(0.15/1_000_000, 0.6/1_000_000),
		"meta/llama-3-8b:free": NewRates(0, 0),
	}, fallback)

	assert.True(t, table.RateFor("openai/gpt-4o-mini").Input.Equal(decimal.RequireFromString("0.00000015")))
	assert.True(t, table.RateFor("meta/llama-3-8b:free").IsFree())

	unknown := table.RateFor("some/unknown-model")
	assert.False(t, unknown.IsFree(), "unknown models must never be free")
	assert.Equal(t, fallback, unknown)
}

func TestPriceTableIgnoresFreeFallback(t *testing.T) {
	fallback := NewRates(1.0/1_000_000, 2.0/1_000_000)
	table := NewPriceTable(nil, fallback)

	table.Replace(map[string]Rates{"a": NewRates(0, 0)}, NewRates(0, 0))

	assert.Equal(t, fallback, table.Fallback())
	assert.True(t, table.RateFor("a").IsFree())
}

func TestPriceTableList(t *testing.T) {
	table := NewPriceTable(map[string]Rates{
		"b": NewRates(1, 1),
		"a": NewRates(0, 0),
	}, NewRates(1, 1))

	list := table.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Model)
	assert.True(t, list[0].Free)
	assert.Equal(t, "b", list[1].Model)
	assert.False(t, list[1].Free)
}

func TestPriceTableWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	table := NewPriceTable(map[string]Rates{"m": NewRates(1, 1)}, NewRates(1, 1))
	defer table.Stop()

	load := func() (map[string]Rates, Rates, error) {
		return map[string]Rates{"m": NewRates(0, 0)}, NewRates(3, 3), nil
	}
	require.NoError(t, table.Watch(path, load))

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	assert.Eventually(t, func() bool {
		return table.RateFor("m").IsFree()
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, NewRates(3, 3), table.Fallback())
}

func TestMicrosConversion(t *testing.T) {
	assert.Equal(t, int64(200), ToMicros(decimal.RequireFromString("0.0002")))
	assert.Equal(t, int64(13), ToMicros(decimal.RequireFromString("0.0000121")), "rounds up")
	assert.Equal(t, int64(10_000_000), ToMicros(decimal.NewFromInt(10)))
	assert.True(t, FromMicros(9_999_800).Equal(decimal.RequireFromString("9.9998")))
}

func TestPriceTableFreeFallbackAtConstruction(t *testing.T) {
	table := NewPriceTable(nil, NewRates(0, 0))
	assert.True(t, table.RateFor("anything").Input.Equal(DefaultRates.Input))
	assert.False(t, table.Fallback().IsFree())
}
