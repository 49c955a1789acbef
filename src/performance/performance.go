// Package performance reduces a realized trade ledger to summary statistics.
package performance

import (
	"math"

	"github.com/shopspring/decimal"

	"insiderbot/src/model"
)

const (
	TradingDaysPerYear = 252

	// variance below this is treated as zero
	minStdDev = 1e-12
)

// Benchmark holds the first and last benchmark prices of the run window.
type Benchmark struct {
	Ticker string
	Start  decimal.Decimal
	End    decimal.Decimal
}

type Summary struct {
	NoTrades bool `json:"no_trades"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	TotalPnL     decimal.Decimal `json:"total_pnl"`
	AvgPnL       decimal.Decimal `json:"avg_pnl"`
	AvgWin       decimal.Decimal `json:"avg_win"`
	AvgLoss      decimal.Decimal `json:"avg_loss"`
	AvgReturnPct float64         `json:"avg_return_pct"`

	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalValue     decimal.Decimal `json:"final_value"`
	TotalReturn    float64         `json:"total_return"`

	BenchmarkTicker    string  `json:"benchmark_ticker,omitempty"`
	BenchmarkAvailable bool    `json:"benchmark_available"`
	BenchmarkReturn    float64 `json:"benchmark_return"`
	Alpha              float64 `json:"alpha"`

	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Summarize is a pure reduction over trades in ledger order. An empty ledger
// yields NoTrades with only the capital and benchmark fields set.
func Summarize(trades []model.Trade, bench Benchmark, initialCapital, finalCapital decimal.Decimal) Summary {
	s := Summary{
		TotalPnL:        decimal.Zero,
		AvgPnL:          decimal.Zero,
		AvgWin:          decimal.Zero,
		AvgLoss:         decimal.Zero,
		InitialCapital:  initialCapital,
		FinalValue:      finalCapital,
		BenchmarkTicker: bench.Ticker,
	}
	if initialCapital.IsPositive() {
		s.TotalReturn = finalCapital.Sub(initialCapital).Div(initialCapital).InexactFloat64()
	}
	if bench.Start.IsPositive() {
		s.BenchmarkAvailable = true
		s.BenchmarkReturn = bench.End.Sub(bench.Start).Div(bench.Start).InexactFloat64()
	}
	s.Alpha = s.TotalReturn - s.BenchmarkReturn

	if len(trades) == 0 {
		s.NoTrades = true
		return s
	}

	wins, losses := decimal.Zero, decimal.Zero
	returns := make([]float64, 0, len(trades))
	var returnsSum float64
	for _, t := range trades {
		s.TotalPnL = s.TotalPnL.Add(t.NetPnL)
		if t.NetPnL.IsPositive() {
			s.WinningTrades++
			wins = wins.Add(t.NetPnL)
		} else {
			s.LosingTrades++
			losses = losses.Add(t.NetPnL)
		}
		r := t.ReturnPct.InexactFloat64()
		returns = append(returns, r)
		returnsSum += r
	}

	s.TotalTrades = len(trades)
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	s.AvgPnL = s.TotalPnL.Div(decimal.NewFromInt(int64(s.TotalTrades)))
	if s.WinningTrades > 0 {
		s.AvgWin = wins.Div(decimal.NewFromInt(int64(s.WinningTrades)))
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = losses.Div(decimal.NewFromInt(int64(s.LosingTrades)))
	}
	s.AvgReturnPct = returnsSum / float64(len(returns))
	s.SharpeRatio = Sharpe(returns)
	s.MaxDrawdown = MaxDrawdown(returns)
	return s
}

// Sharpe annualizes mean/stdev of per-trade returns using the sample
// deviation. Fewer than two returns or zero variance give 0.
func Sharpe(returns []float64) float64 {
	n := len(returns)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(n)

	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(n-1))
	if std < minStdDev || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// MaxDrawdown is the most negative cum_t/max(cum_0..cum_t)-1 over the
// compounded return curve. It is 0 or negative.
func MaxDrawdown(returns []float64) float64 {
	cum := 1.0
	var peak, maxDD float64
	for i, r := range returns {
		cum *= 1 + r
		if i == 0 || cum > peak {
			peak = cum
		}
		if peak <= 0 {
			continue
		}
		if dd := cum/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
