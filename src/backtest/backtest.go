// Package backtest replays a recorded insider-filing feed against recorded
// daily bars, day by day, through the same signal builder, portfolio simulator
// and exit rules the live trader uses.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"insiderbot/src/config"
	"insiderbot/src/model"
	"insiderbot/src/performance"
	"insiderbot/src/portfolio"
	"insiderbot/src/risk"
	"insiderbot/src/signals"
)

const (
	serviceName = "backtest"

	// a close older than this is not used as a price
	maxBarAgeDays = 5

	loadConcurrency = 4
)

var ErrInvalidRange = errors.New("invalid backtest range")

type EventSource interface {
	Between(ctx context.Context, start, end time.Time) ([]model.InsiderTransaction, error)
}

type BarSource interface {
	PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCVDaily, error)
}

type TradeSink interface {
	CreateBatch(ctx context.Context, trades []model.Trade) error
}

type RejectionSink interface {
	CreateBatch(ctx context.Context, rows []model.Rejection) error
}

type Result struct {
	Start       time.Time                 `json:"start"`
	End         time.Time                 `json:"end"`
	TradingDays int                       `json:"trading_days"`
	Summary     performance.Summary       `json:"summary"`
	Trades      []model.Trade             `json:"trades"`
	Signals     []model.TradingSignal     `json:"signals"`
	Skipped     []model.Rejection         `json:"skipped"`
	EquityCurve []model.PortfolioSnapshot `json:"equity_curve"`
	Unclosed    []string                  `json:"unclosed,omitempty"`
}

type Backtester struct {
	cfg       config.Trading
	benchmark string
	events    EventSource
	bars      BarSource
	builder   *signals.Builder

	trades     TradeSink
	rejections RejectionSink

	log *logrus.Entry
}

func New(cfg config.Trading, benchmark string, events EventSource, bars BarSource, log *logrus.Entry) *Backtester {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Backtester{
		cfg:       cfg,
		benchmark: benchmark,
		events:    events,
		bars:      bars,
		builder:   signals.NewBuilder(cfg),
		log:       log.WithField("component", serviceName),
	}
}

// WithStores makes Run persist the closed trades and skipped signals. Either may be nil.
func (b *Backtester) WithStores(trades TradeSink, rejections RejectionSink) *Backtester {
	b.trades = trades
	b.rejections = rejections
	return b
}

func (b *Backtester) WithBuilder(builder *signals.Builder) *Backtester {
	b.builder = builder
	return b
}

// Run simulates every trading day in [start, end]. Open positions are checked
// against the bars that arrived since their last evaluation before new filings
// are scored, so a position is never entered and exited on the same bar.
func (b *Backtester) Run(ctx context.Context, start, end time.Time) (*Result, error) {
	start, end = dateOf(start), dateOf(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start.Format(dateLayout), end.Format(dateLayout))
	}

	lookbackStart := start.AddDate(0, 0, -b.cfg.LookbackDays)
	events, err := b.events.Between(ctx, lookbackStart, endOfDay(end))
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}

	tickers, byTicker := signals.GroupByTicker(events)
	filedOn := filingsByDay(events)

	b.log.WithFields(logrus.Fields{
		"start":        start.Format(dateLayout),
		"end":          end.Format(dateLayout),
		"transactions": len(events),
		"tickers":      len(tickers),
	}).Info("backtest started")

	series := b.loadSeries(ctx, tickers, lookbackStart.AddDate(0, 0, -maxBarAgeDays), end)
	benchmark := b.loadSeries(ctx, []string{b.benchmark}, start, end)[b.benchmark]

	sim := portfolio.NewSimulator(b.cfg, b.cfg.InitialCapital, b.log)
	res := &Result{Start: start, End: end}

	// filings made on a closed day are acted on at the next trading day
	var carried []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !risk.IsTradingDate(day) {
			carried = append(carried, filedOn[day]...)
			continue
		}
		res.TradingDays++

		b.manage(sim, series, day, res)
		b.enter(sim, series, byTicker, mergeTickers(carried, filedOn[day]), day, res)
		carried = nil

		marks := make(map[string]decimal.Decimal)
		for _, pos := range sim.OpenPositions() {
			if c := series[pos.Ticker].closeAsOf(day); c != nil {
				marks[pos.Ticker] = *c
			}
		}
		res.EquityCurve = append(res.EquityCurve, sim.Snapshot(marks).Record(day, b.cfg.InitialCapital, benchmark.closeAsOf(day)))
	}

	closed := sim.CloseAll(ctx, func(_ context.Context, ticker string) (*decimal.Decimal, error) {
		return series[ticker].closeAsOf(end), nil
	}, end)
	res.Unclosed = closed.Unclosed

	res.Trades = sim.Ledger()
	res.Summary = performance.Summarize(res.Trades, benchmark.firstLast(b.benchmark, start, end), b.cfg.InitialCapital, sim.Cash())

	b.log.WithFields(logrus.Fields{
		"trading_days": res.TradingDays,
		"trades":       res.Summary.TotalTrades,
		"skipped":      len(res.Skipped),
		"unclosed":     len(res.Unclosed),
		"total_return": fmt.Sprintf("%.4f", res.Summary.TotalReturn),
		"final_value":  res.Summary.FinalValue.StringFixed(2),
	}).Info("backtest finished")

	if err := b.persist(ctx, res); err != nil {
		return res, err
	}
	return res, nil
}

func (b *Backtester) manage(sim *portfolio.Simulator, series map[string]barSeries, day time.Time, res *Result) {
	for _, pos := range sim.OpenPositions() {
		after := pos.LastBarAt
		if pos.EntryDate.After(after) {
			after = pos.EntryDate
		}
		bars := series[pos.Ticker].between(after, day)

		trade, err := sim.EvaluateAndMaybeExit(pos.Ticker, bars, day)
		if err != nil {
			b.log.WithError(err).WithField("ticker", pos.Ticker).Warn("exit evaluation failed")
			res.Skipped = append(res.Skipped, portfolio.RejectionRecord(serviceName, "exit", pos.Ticker, pos.SignalID, err, day))
			continue
		}
		if trade != nil {
			b.log.WithFields(logrus.Fields{
				"ticker":  trade.Ticker,
				"reason":  trade.ExitReason,
				"net_pnl": trade.NetPnL.StringFixed(2),
				"date":    day.Format(dateLayout),
			}).Debug("position exited")
		}
	}
}

func (b *Backtester) enter(sim *portfolio.Simulator, series map[string]barSeries, byTicker map[string][]model.InsiderTransaction, tickers []string, day time.Time, res *Result) {
	asOf := endOfDay(day)
	for _, ticker := range tickers {
		group := signals.InWindow(byTicker[ticker], asOf, b.cfg.LookbackDays)

		sig, rej := b.builder.Build(ticker, group, series[ticker].closeAsOf(day), asOf)
		if rej != nil {
			res.Skipped = append(res.Skipped, rej.Record(serviceName, day))
			continue
		}
		res.Signals = append(res.Signals, *sig)

		if _, err := sim.Open(sig, day); err != nil {
			b.log.WithError(err).WithField("ticker", ticker).Debug("signal not opened")
			res.Skipped = append(res.Skipped, portfolio.RejectionRecord(serviceName, "open", ticker, sig.SignalID, err, day))
		}
	}
}

func (b *Backtester) persist(ctx context.Context, res *Result) error {
	var errs []error
	if b.trades != nil && len(res.Trades) > 0 {
		if err := b.trades.CreateBatch(ctx, res.Trades); err != nil {
			errs = append(errs, fmt.Errorf("persist trades: %w", err))
		}
	}
	if b.rejections != nil && len(res.Skipped) > 0 {
		if err := b.rejections.CreateBatch(ctx, res.Skipped); err != nil {
			errs = append(errs, fmt.Errorf("persist skipped signals: %w", err))
		}
	}
	return errors.Join(errs...)
}

// loadSeries fetches bars per ticker. A ticker whose bars cannot be loaded
// gets an empty series and is treated as having no data.
func (b *Backtester) loadSeries(ctx context.Context, tickers []string, start, end time.Time) map[string]barSeries {
	var mu sync.Mutex
	out := make(map[string]barSeries, len(tickers))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(loadConcurrency)
	for _, ticker := range tickers {
		if ticker == "" {
			continue
		}
		eg.Go(func() error {
			bars, err := b.bars.PriceHistory(egCtx, ticker, start, end)
			if err != nil {
				b.log.WithError(err).WithField("ticker", ticker).Warn("could not load price history")
			}
			s := barSeries(bars)
			sort.Slice(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })

			mu.Lock()
			out[ticker] = s
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// filingsByDay maps each filing date to the tickers filed that day, sorted.
func filingsByDay(events []model.InsiderTransaction) map[time.Time][]string {
	out := make(map[time.Time][]string)
	for _, ev := range events {
		day := dateOf(ev.FilingDate)
		out[day] = append(out[day], strings.ToUpper(strings.TrimSpace(ev.Ticker)))
	}
	for day, tickers := range out {
		out[day] = mergeTickers(tickers)
	}
	return out
}

// mergeTickers returns the sorted union of the given ticker lists.
func mergeTickers(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, t := range l {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func endOfDay(day time.Time) time.Time {
	return dateOf(day).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// barSeries is ascending by date.
type barSeries []model.OHLCVDaily

// between returns bars dated after `after` up to and including `through`.
func (s barSeries) between(after, through time.Time) []model.OHLCVDaily {
	var out []model.OHLCVDaily
	for _, bar := range s {
		if bar.Date.After(after) && !bar.Date.After(through) {
			out = append(out, bar)
		}
	}
	return out
}

// closeAsOf returns the last close dated at or before day and no older than maxBarAgeDays.
func (s barSeries) closeAsOf(day time.Time) *decimal.Decimal {
	oldest := day.AddDate(0, 0, -maxBarAgeDays)
	for i := len(s) - 1; i >= 0; i-- {
		bar := s[i]
		if bar.Date.After(day) {
			continue
		}
		if bar.Date.Before(oldest) {
			return nil
		}
		c := bar.Close
		return &c
	}
	return nil
}

func (s barSeries) firstLast(ticker string, start, end time.Time) performance.Benchmark {
	bench := performance.Benchmark{Ticker: ticker}
	for _, bar := range s {
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		if bench.Start.IsZero() {
			bench.Start = bar.Close
		}
		bench.End = bar.Close
	}
	return bench
}
