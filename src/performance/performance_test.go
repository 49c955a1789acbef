package performance

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(net, ret string) model.Trade {
	return model.Trade{NetPnL: d(net), ReturnPct: d(ret), Status: model.TradeStatusClosed}
}

func TestSummarize_EmptyLedger(t *testing.T) {
	s := Summarize(nil, Benchmark{Ticker: "SPY", Start: d("400"), End: d("420")}, d("100000"), d("100000"))

	assert.True(t, s.NoTrades)
	assert.Zero(t, s.TotalTrades)
	assert.Zero(t, s.WinRate)
	assert.Zero(t, s.SharpeRatio)
	assert.Zero(t, s.MaxDrawdown)
	assert.Zero(t, s.TotalReturn)
	assert.True(t, s.BenchmarkAvailable)
	assert.InDelta(t, 0.05, s.BenchmarkReturn, 1e-12)
	assert.InDelta(t, -0.05, s.Alpha, 1e-12)
	assert.False(t, math.IsNaN(s.AvgReturnPct))
}

func TestSummarize_Ledger(t *testing.T) {
	trades := []model.Trade{
		trade("100", "0.10"),
		trade("-50", "-0.05"),
		trade("0", "0"),
		trade("200", "0.20"),
	}

	s := Summarize(trades, Benchmark{Start: d("100"), End: d("110")}, d("1000"), d("1250"))
	require.False(t, s.NoTrades)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades, "a flat trade counts as a loss")
	assert.Equal(t, 0.5, s.WinRate)
	assert.Equal(t, "250", s.TotalPnL.String())
	assert.Equal(t, "62.5", s.AvgPnL.String())
	assert.Equal(t, "150", s.AvgWin.String())
	assert.Equal(t, "-25", s.AvgLoss.String())
	assert.InDelta(t, 0.0625, s.AvgReturnPct, 1e-12)
	assert.InDelta(t, 0.25, s.TotalReturn, 1e-12)
	assert.InDelta(t, 0.10, s.BenchmarkReturn, 1e-12)
	assert.InDelta(t, 0.15, s.Alpha, 1e-12)
	assert.InDelta(t, -0.05, s.MaxDrawdown, 1e-12)
	assert.Greater(t, s.SharpeRatio, 0.0)
}

func TestSummarize_BenchmarkUnavailable(t *testing.T) {
	s := Summarize([]model.Trade{trade("10", "0.01")}, Benchmark{}, d("1000"), d("1010"))

	assert.False(t, s.BenchmarkAvailable)
	assert.Zero(t, s.BenchmarkReturn)
	assert.InDelta(t, 0.01, s.Alpha, 1e-12)
}

func TestSharpe(t *testing.T) {
	assert.Zero(t, Sharpe(nil))
	assert.Zero(t, Sharpe([]float64{0.05}))
	assert.Zero(t, Sharpe([]float64{0.02, 0.02, 0.02}), "zero variance")

	// mean 0.02, sample stdev 0.02
	got := Sharpe([]float64{0.0, 0.02, 0.04})
	assert.InDelta(t, math.Sqrt(252), got, 1e-9)
}

func TestMaxDrawdown(t *testing.T) {
	assert.Zero(t, MaxDrawdown(nil))
	assert.Zero(t, MaxDrawdown([]float64{0.1, 0.1}))

	// curve 1.1, 0.99, 1.089, 0.8712 -> trough vs 1.1 peak
	got := MaxDrawdown([]float64{0.1, -0.1, 0.1, -0.2})
	assert.InDelta(t, 0.8712/1.1-1, got, 1e-12)

	// first trade is a loss: running max starts at the first point
	assert.InDelta(t, -0.5, MaxDrawdown([]float64{-0.5, -0.5}), 1e-12)
}
