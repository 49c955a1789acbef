// Package backtester runs a historical replay over the configured date range
// and reports the performance summary.
package backtester

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"insiderbot/src/backtest"
	"insiderbot/src/config"
)

type Backtester struct {
	Log      *logrus.Entry
	Config   *Config
	Backtest backtest.Config
	Trading  config.Trading

	Events backtest.EventSource
	Bars   backtest.BarSource
	// Trades and Rejections receive the results when Backtest.Persist is set.
	Trades     backtest.TradeSink
	Rejections backtest.RejectionSink

	Out io.Writer
}

func (b *Backtester) Start(ctx context.Context, now time.Time) (*backtest.Result, error) {
	start, end, err := b.Backtest.Range(now)
	if err != nil {
		return nil, err
	}
	trading := b.Backtest.Apply(b.Trading)
	if err := trading.Validate(); err != nil {
		return nil, err
	}

	bt := backtest.New(trading, b.Backtest.BenchmarkTicker, b.Events, b.Bars, b.Log)
	if b.Backtest.Persist {
		bt.WithStores(b.Trades, b.Rejections)
	}

	res, err := bt.Run(ctx, start, end)
	if err != nil && res == nil {
		return nil, err
	}

	if b.Out != nil {
		if werr := Report(b.Out, res); werr != nil {
			return res, werr
		}
	}
	if b.Config.Output != "" {
		if werr := writeJSON(b.Config.Output, res); werr != nil {
			return res, werr
		}
	}
	return res, err
}

func writeJSON(path string, res *backtest.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Report prints the headline numbers of a run.
func Report(w io.Writer, res *backtest.Result) error {
	s := res.Summary
	money := func(f float64) string { return "$" + humanize.FormatFloat("#,###.##", f) }
	pct := func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) }

	lines := []string{
		fmt.Sprintf("Period:          %s to %s (%d trading days)", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.TradingDays),
		fmt.Sprintf("Initial capital: %s", money(s.InitialCapital.InexactFloat64())),
		fmt.Sprintf("Final value:     %s", money(s.FinalValue.InexactFloat64())),
		fmt.Sprintf("Total return:    %s", pct(s.TotalReturn)),
	}
	if s.NoTrades {
		lines = append(lines, "No trades.")
	} else {
		lines = append(lines,
			fmt.Sprintf("Trades:          %d (%d won, %d lost, win rate %s)", s.TotalTrades, s.WinningTrades, s.LosingTrades, pct(s.WinRate)),
			fmt.Sprintf("Net P&L:         %s (avg %s)", money(s.TotalPnL.InexactFloat64()), money(s.AvgPnL.InexactFloat64())),
			fmt.Sprintf("Sharpe ratio:    %.2f", s.SharpeRatio),
			fmt.Sprintf("Max drawdown:    %s", pct(s.MaxDrawdown)),
		)
	}
	if s.BenchmarkAvailable {
		lines = append(lines,
			fmt.Sprintf("Benchmark (%s): %s", s.BenchmarkTicker, pct(s.BenchmarkReturn)),
			fmt.Sprintf("Alpha:           %s", pct(s.Alpha)),
		)
	} else {
		lines = append(lines, "Benchmark:       unavailable")
	}
	lines = append(lines, fmt.Sprintf("Skipped signals: %d", len(res.Skipped)))
	if len(res.Unclosed) > 0 {
		lines = append(lines, fmt.Sprintf("Unpriced at end: %v", res.Unclosed))
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
