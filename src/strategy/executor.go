package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"insiderbot/src/config"
	"insiderbot/src/connectors"
	"insiderbot/src/model"
	"insiderbot/src/portfolio"
	"insiderbot/src/risk"
	"insiderbot/src/signals"
	"insiderbot/src/tp_sl"
)

const serviceName = "trader"

var (
	ErrCycleInProgress = errors.New("trading cycle already running")
	ErrRestoreFailed   = errors.New("could not restore portfolio state")
)

// entry orders may fill up to 1% above the signal price
var entryLimitFactor = decimal.RequireFromString("1.01")

type TransactionStore interface {
	RecentByFilingDate(ctx context.Context, since time.Time) ([]model.InsiderTransaction, error)
}

type SignalStore interface {
	Create(ctx context.Context, signal *model.TradingSignal) error
	FindActive(ctx context.Context) ([]model.TradingSignal, error)
	UpdateStatus(ctx context.Context, signalID string, status model.SignalStatus) error
}

type TradeStore interface {
	Create(ctx context.Context, trade *model.Trade) error
	GetOpenTrades(ctx context.Context) ([]model.Trade, error)
	FindClosed(ctx context.Context) ([]model.Trade, error)
	ApplyUpdate(ctx context.Context, u model.TradeUpdate) error
}

type RejectionStore interface {
	Create(ctx context.Context, rej *model.Rejection) error
}

type SnapshotStore interface {
	Create(ctx context.Context, snap *model.PortfolioSnapshot) error
}

type Stores struct {
	Transactions TransactionStore
	Signals      SignalStore
	Trades       TradeStore
	Rejections   RejectionStore
	Snapshots    SnapshotStore
}

type CycleResult struct {
	StartedAt  time.Time
	TradingDay bool
	Signals    []model.TradingSignal
	Opened     []model.Trade
	Closed     []model.Trade
	Rejections []model.Rejection
	Snapshot   *model.PortfolioSnapshot
	Errors     []error
}

// Executor runs the live trading cycle: score recent filings, enter new
// positions through the execution connector and exit held ones with the same
// rules the backtester uses.
type Executor struct {
	cfg       config.Trading
	stores    Stores
	prices    signals.PriceSource
	conn      connectors.ExecutionConnector
	generator *signals.Generator
	benchmark string

	running  sync.Mutex
	sim      *portfolio.Simulator
	restored bool

	logger *logrus.Entry
	now    func() time.Time
}

func NewExecutor(logger *logrus.Entry, cfg config.Trading, stores Stores, prices signals.PriceSource, conn connectors.ExecutionConnector) *Executor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", serviceName)

	return &Executor{
		cfg:       cfg,
		stores:    stores,
		prices:    prices,
		conn:      conn,
		generator: signals.NewGenerator(cfg, prices, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// WithBenchmark sets the ticker whose price is stored with each snapshot.
func (e *Executor) WithBenchmark(ticker string) *Executor {
	e.benchmark = ticker
	return e
}

func (e *Executor) WithGenerator(g *signals.Generator) *Executor {
	e.generator = g
	return e
}

// Portfolio exposes the in-memory portfolio; nil before the first cycle.
func (e *Executor) Portfolio() *portfolio.Simulator {
	return e.sim
}

// RunNow runs a cycle at the current time.
func (e *Executor) RunNow(ctx context.Context) CycleResult {
	return e.RunCycle(ctx, e.now())
}

// RunCycle executes one cycle at now. Failures of a single ticker are
// collected in the result and never stop the cycle. On a day the market is
// closed only signals and the snapshot are produced.
func (e *Executor) RunCycle(ctx context.Context, now time.Time) CycleResult {
	if ctx == nil {
		ctx = context.Background()
	}
	result := CycleResult{StartedAt: now, TradingDay: risk.IsTradingDay(now)}

	if !e.running.TryLock() {
		result.Errors = append(result.Errors, ErrCycleInProgress)
		return result
	}
	defer e.running.Unlock()

	if !e.restored {
		if err := e.restore(ctx); err != nil {
			e.logger.WithError(err).Error("failed to restore portfolio, skipping cycle")
			result.Errors = append(result.Errors, fmt.Errorf("%w: %v", ErrRestoreFailed, err))
			return result
		}
	}

	fresh := e.generate(ctx, now, &result)

	quotes := make(map[string]decimal.Decimal)
	if result.TradingDay {
		e.execute(ctx, fresh, now, &result)
		e.manage(ctx, now, quotes, &result)
	} else {
		e.logger.WithField("date", now.Format("2006-01-02")).Info("market closed, skipping execution and position management")
	}

	e.snapshot(ctx, now, quotes, &result)

	e.logger.WithFields(logrus.Fields{
		"trading_day": result.TradingDay,
		"signals":     len(result.Signals),
		"opened":      len(result.Opened),
		"closed":      len(result.Closed),
		"rejections":  len(result.Rejections),
		"errors":      len(result.Errors),
	}).Info("trading cycle finished")

	return result
}

// restore rebuilds the portfolio from persisted trades. Cash is the initial
// capital plus realized P&L, less what the open trades committed.
func (e *Executor) restore(ctx context.Context) error {
	open, err := e.stores.Trades.GetOpenTrades(ctx)
	if err != nil {
		return fmt.Errorf("load open trades: %w", err)
	}
	closed, err := e.stores.Trades.FindClosed(ctx)
	if err != nil {
		return fmt.Errorf("load closed trades: %w", err)
	}

	cash := e.cfg.InitialCapital
	for _, t := range closed {
		cash = cash.Add(t.NetPnL)
	}
	for _, t := range open {
		cash = cash.Sub(t.CostBasis()).Sub(t.EntryCommission)
	}

	sim := portfolio.NewSimulator(e.cfg, cash, e.logger)
	history := make([]model.Trade, 0, len(open)+len(closed))
	history = append(append(history, open...), closed...)
	if err := sim.Restore(history); err != nil {
		return err
	}
	e.sim = sim
	e.restored = true

	e.logger.WithFields(logrus.Fields{
		"open_trades":   len(open),
		"closed_trades": len(closed),
		"cash":          cash.StringFixed(2),
	}).Info("portfolio restored")
	return nil
}

// generate scores recent filings and persists the resulting signals. Signals
// for tickers already held are dropped.
func (e *Executor) generate(ctx context.Context, now time.Time, result *CycleResult) []model.TradingSignal {
	e.expireSignals(ctx, now, result)

	events, err := e.stores.Transactions.RecentByFilingDate(ctx, now.AddDate(0, 0, -e.cfg.LookbackDays))
	if err != nil {
		e.logger.WithError(err).Error("failed to load recent transactions")
		result.Errors = append(result.Errors, fmt.Errorf("load transactions: %w", err))
		return nil
	}

	generated := e.generator.Generate(ctx, events, now)
	for _, rej := range generated.Rejections {
		e.reject(ctx, rej.Record(serviceName, now), result)
	}

	var fresh []model.TradingSignal
	for _, sig := range generated.Signals {
		if _, held := e.sim.Position(sig.Ticker); held {
			e.logger.WithField("ticker", sig.Ticker).Debug("already holding ticker, signal dropped")
			continue
		}
		if err := e.stores.Signals.Create(ctx, sig); err != nil {
			e.logger.WithError(err).WithField("ticker", sig.Ticker).Error("failed to persist signal")
			result.Errors = append(result.Errors, fmt.Errorf("persist signal %s: %w", sig.Ticker, err))
			continue
		}
		fresh = append(fresh, *sig)
	}
	result.Signals = fresh
	return fresh
}

// expireSignals retires active signals that fell out of the lookback window.
func (e *Executor) expireSignals(ctx context.Context, now time.Time, result *CycleResult) {
	active, err := e.stores.Signals.FindActive(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("load active signals: %w", err))
		return
	}
	cutoff := now.AddDate(0, 0, -e.cfg.LookbackDays)
	for _, sig := range active {
		if !sig.SignalDate.Before(cutoff) {
			continue
		}
		if err := e.stores.Signals.UpdateStatus(ctx, sig.SignalID, model.SignalStatusExpired); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("expire signal %s: %w", sig.SignalID, err))
		}
	}
}

// execute opens positions for the highest conviction signals first.
func (e *Executor) execute(ctx context.Context, fresh []model.TradingSignal, now time.Time, result *CycleResult) {
	ordered := make([]model.TradingSignal, len(fresh))
	copy(ordered, fresh)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ConvictionScore > ordered[j].ConvictionScore })

	for i := range ordered {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("execution canceled: %w", err))
			return
		}
		sig := ordered[i]
		log := e.logger.WithFields(logrus.Fields{"ticker": sig.Ticker, "signal_id": sig.SignalID})

		pos, err := e.sim.Begin(&sig, now)
		if err != nil {
			log.WithError(err).Info("signal not opened")
			e.reject(ctx, portfolio.RejectionRecord(serviceName, "open", sig.Ticker, sig.SignalID, err, now), result)
			continue
		}

		fill, err := e.conn.PlaceOrder(ctx, connectors.OrderRequest{
			Ticker:    sig.Ticker,
			Shares:    pos.Shares,
			Side:      connectors.SideBuy,
			PriceHint: sig.EntryPrice.Mul(entryLimitFactor),
		})
		if err != nil {
			log.WithError(err).Warn("entry order failed")
			if cancelErr := e.sim.Cancel(sig.Ticker); cancelErr != nil {
				result.Errors = append(result.Errors, cancelErr)
			}
			e.reject(ctx, orderRejection("open", sig.Ticker, sig.SignalID, err, now), result)
			result.Errors = append(result.Errors, fmt.Errorf("entry order %s: %w", sig.Ticker, err))
			continue
		}

		pos, err = e.sim.FillAtBroker(sig.Ticker, fill.Price, now)
		if err != nil {
			// the broker holds shares the portfolio could not book
			log.WithError(err).WithField("order_id", fill.OrderID).Error("filled entry order could not be booked")
			e.reject(ctx, portfolio.RejectionRecord(serviceName, "fill", sig.Ticker, sig.SignalID, err, now), result)
			result.Errors = append(result.Errors, fmt.Errorf("book fill %s: %w", sig.Ticker, err))
			continue
		}

		trade := portfolio.OpenTradeRecord(pos, fill.OrderID)
		if err := e.stores.Trades.Create(ctx, &trade); err != nil {
			log.WithError(err).Error("failed to persist open trade")
			result.Errors = append(result.Errors, fmt.Errorf("persist trade %s: %w", sig.Ticker, err))
		}
		if err := e.stores.Signals.UpdateStatus(ctx, sig.SignalID, model.SignalStatusExecuted); err != nil {
			log.WithError(err).Error("failed to mark signal executed")
			result.Errors = append(result.Errors, fmt.Errorf("mark signal %s: %w", sig.SignalID, err))
		}
		result.Opened = append(result.Opened, trade)

		log.WithFields(logrus.Fields{
			"trade_id": trade.TradeID,
			"shares":   trade.Shares,
			"entry":    trade.EntryPrice.StringFixed(4),
			"order_id": fill.OrderID,
		}).Info("position opened")
	}
}

// manage applies the exit rules to every position held before this cycle.
// Quotes seen here are returned through quotes for the snapshot.
func (e *Executor) manage(ctx context.Context, now time.Time, quotes map[string]decimal.Decimal, result *CycleResult) {
	openedNow := make(map[string]struct{}, len(result.Opened))
	for _, t := range result.Opened {
		openedNow[t.Ticker] = struct{}{}
	}

	for _, pos := range e.sim.OpenPositions() {
		if _, ok := openedNow[pos.Ticker]; ok {
			continue
		}
		log := e.logger.WithFields(logrus.Fields{"ticker": pos.Ticker, "trade_id": pos.TradeID})

		price, err := e.prices.CurrentPrice(ctx, pos.Ticker)
		if err != nil {
			log.WithError(err).Warn("could not get price, position left unchanged")
			result.Errors = append(result.Errors, fmt.Errorf("price %s: %w", pos.Ticker, err))
			continue
		}

		var bars []model.OHLCVDaily
		if price != nil {
			quotes[pos.Ticker] = *price
			bars = append(bars, tp_sl.QuoteBar(pos.Ticker, *price, now))
		}

		decision, _, err := e.sim.CheckExit(pos.Ticker, bars, now)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if !decision.Triggered() {
			continue
		}

		fill, err := e.conn.PlaceOrder(ctx, connectors.OrderRequest{
			Ticker:    pos.Ticker,
			Shares:    pos.Shares,
			Side:      connectors.SideSell,
			PriceHint: decision.Price,
		})
		if err != nil {
			log.WithError(err).WithField("reason", decision.Reason).Warn("exit order failed, position stays open")
			e.reject(ctx, orderRejection("exit", pos.Ticker, pos.SignalID, err, now), result)
			result.Errors = append(result.Errors, fmt.Errorf("exit order %s: %w", pos.Ticker, err))
			continue
		}

		// the broker fill, not the trigger level, is what was realized
		decision.Price = fill.Price
		trade, err := e.sim.CloseAtBroker(pos.TradeID, decision)
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if err := e.stores.Trades.ApplyUpdate(ctx, trade.CloseUpdate()); err != nil {
			log.WithError(err).Error("failed to persist trade exit")
			result.Errors = append(result.Errors, fmt.Errorf("persist exit %s: %w", pos.Ticker, err))
		}
		result.Closed = append(result.Closed, trade)
	}
}

func (e *Executor) snapshot(ctx context.Context, now time.Time, quotes map[string]decimal.Decimal, result *CycleResult) {
	var benchmark *decimal.Decimal
	if e.benchmark != "" {
		p, err := e.prices.CurrentPrice(ctx, e.benchmark)
		if err != nil {
			e.logger.WithError(err).WithField("ticker", e.benchmark).Warn("could not get benchmark price")
		}
		benchmark = p
	}

	rec := e.sim.Snapshot(quotes).Record(now, e.cfg.InitialCapital, benchmark)
	if err := e.stores.Snapshots.Create(ctx, &rec); err != nil {
		e.logger.WithError(err).Error("failed to persist portfolio snapshot")
		result.Errors = append(result.Errors, fmt.Errorf("persist snapshot: %w", err))
	}
	result.Snapshot = &rec
}

func (e *Executor) reject(ctx context.Context, rej model.Rejection, result *CycleResult) {
	result.Rejections = append(result.Rejections, rej)
	if err := e.stores.Rejections.Create(ctx, &rej); err != nil {
		e.logger.WithError(err).WithField("ticker", rej.Ticker).Warn("failed to persist rejection")
		result.Errors = append(result.Errors, fmt.Errorf("persist rejection %s: %w", rej.Ticker, err))
	}
}

func orderRejection(stage, ticker, signalID string, err error, at time.Time) model.Rejection {
	return model.Rejection{
		Service:    serviceName,
		Stage:      stage,
		Ticker:     ticker,
		SignalID:   signalID,
		Reason:     "order_failed",
		Message:    err.Error(),
		OccurredAt: at,
	}
}
