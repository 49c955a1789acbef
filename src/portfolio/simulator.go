package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"insiderbot/src/config"
	"insiderbot/src/model"
	"insiderbot/src/risk"
	"insiderbot/src/tp_sl"
)

var (
	ErrInvalidSignal    = errors.New("invalid signal")
	ErrPositionExists   = errors.New("position already exists for ticker")
	ErrMaxPositions     = errors.New("max positions reached")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNotPending       = errors.New("position is not pending")
	ErrUnknownPosition  = errors.New("no such position")
	ErrTradeClosed      = errors.New("trade already closed")
	ErrNoExit           = errors.New("decision does not close the position")
	ErrSignalConsumed   = errors.New("signal already executed")
)

// LatestPriceFunc returns the most recent obtainable price for a ticker, or nil.
type LatestPriceFunc func(ctx context.Context, ticker string) (*decimal.Decimal, error)

// Simulator owns the cash balance and the open positions of one run. Every
// state change happens under mu; configuration is read-only.
type Simulator struct {
	mu sync.Mutex

	cfg         config.Trading
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[string]*model.Position
	byTrade     map[string]string
	closed      map[string]struct{}
	consumed    map[string]struct{}
	ledger      []model.Trade

	newID func() string
	log   *logrus.Entry
}

func NewSimulator(cfg config.Trading, cash decimal.Decimal, log *logrus.Entry) *Simulator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Simulator{
		cfg:         cfg,
		initialCash: cash,
		cash:        cash,
		positions:   make(map[string]*model.Position),
		byTrade:     make(map[string]string),
		closed:      make(map[string]struct{}),
		consumed:    make(map[string]struct{}),
		newID:       uuid.NewString,
		log:         log.WithField("component", "portfolio"),
	}
}

// WithIDFunc replaces the trade id generator. Call before use.
func (s *Simulator) WithIDFunc(fn func() string) *Simulator {
	s.newID = fn
	return s
}

// Begin reserves the ticker for sig without moving cash (Pending).
func (s *Simulator) Begin(sig *model.TradingSignal, at time.Time) (model.Position, error) {
	if err := validateSignal(sig); err != nil {
		return model.Position{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[sig.Ticker]; ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrPositionExists, sig.Ticker)
	}
	if _, used := s.consumed[sig.SignalID]; used && sig.SignalID != "" {
		return model.Position{}, fmt.Errorf("%w: %s", ErrSignalConsumed, sig.SignalID)
	}
	if len(s.positions) >= s.cfg.MaxPositions {
		return model.Position{}, fmt.Errorf("%w: %d", ErrMaxPositions, s.cfg.MaxPositions)
	}
	cost := risk.CalculateEntryCost(sig.TargetPositionSize, sig.EntryPrice, s.cfg)
	if cost.Total.GreaterThan(s.cash) {
		return model.Position{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.Total.StringFixed(2), s.cash.StringFixed(2))
	}

	pos := &model.Position{
		Ticker:       sig.Ticker,
		SignalID:     sig.SignalID,
		State:        model.PositionStatePending,
		SignalPrice:  sig.EntryPrice,
		EntryDate:    at,
		Shares:       sig.TargetPositionSize,
		StopLoss:     sig.StopLoss,
		ProfitTarget: sig.ProfitTarget,
	}
	s.positions[sig.Ticker] = pos
	return *pos, nil
}

// Fill commits cash for a Pending position at the quoted price (Open).
// Slippage is applied to price.
func (s *Simulator) Fill(ticker string, price decimal.Decimal, at time.Time) (model.Position, error) {
	return s.fill(ticker, price, at, s.cfg)
}

// FillAtBroker is Fill for a price the broker already executed at: only
// commission is charged.
func (s *Simulator) FillAtBroker(ticker string, price decimal.Decimal, at time.Time) (model.Position, error) {
	return s.fill(ticker, price, at, s.brokerCosts())
}

func (s *Simulator) fill(ticker string, price decimal.Decimal, at time.Time, costs config.Trading) (model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[ticker]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, ticker)
	}
	if pos.State != model.PositionStatePending {
		return model.Position{}, fmt.Errorf("%w: %s is %s", ErrNotPending, ticker, pos.State)
	}
	if !price.IsPositive() {
		delete(s.positions, ticker)
		return model.Position{}, fmt.Errorf("%w: fill price %s", ErrInvalidSignal, price)
	}

	cost := risk.CalculateEntryCost(pos.Shares, price, costs)
	if cost.Total.GreaterThan(s.cash) {
		delete(s.positions, ticker)
		return model.Position{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.Total.StringFixed(2), s.cash.StringFixed(2))
	}

	s.cash = s.cash.Sub(cost.Total)
	pos.TradeID = s.newID()
	pos.State = model.PositionStateOpen
	pos.EntryPrice = cost.FillPrice
	pos.EntryDate = at
	pos.CommissionPaid = cost.Commission
	pos.LastBarAt = at
	pos.LastEvaluated = at
	s.byTrade[pos.TradeID] = ticker
	if pos.SignalID != "" {
		s.consumed[pos.SignalID] = struct{}{}
	}

	s.log.WithFields(logrus.Fields{
		"ticker":     ticker,
		"trade_id":   pos.TradeID,
		"shares":     pos.Shares,
		"entry":      pos.EntryPrice.StringFixed(4),
		"commission": pos.CommissionPaid.StringFixed(2),
		"cash":       s.cash.StringFixed(2),
	}).Info("position opened")

	return *pos, nil
}

// Cancel drops a Pending position, e.g. after a rejected order.
func (s *Simulator) Cancel(ticker string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[ticker]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, ticker)
	}
	if pos.State != model.PositionStatePending {
		return fmt.Errorf("%w: %s is %s", ErrNotPending, ticker, pos.State)
	}
	delete(s.positions, ticker)
	return nil
}

// Open is Begin followed by a Fill at the signal price.
func (s *Simulator) Open(sig *model.TradingSignal, at time.Time) (model.Position, error) {
	if _, err := s.Begin(sig, at); err != nil {
		return model.Position{}, err
	}
	return s.Fill(sig.Ticker, sig.EntryPrice, at)
}

// CheckExit runs the exit rules for an Open position against bars and records
// the latest observed close. It never closes anything.
func (s *Simulator) CheckExit(ticker string, bars []model.OHLCVDaily, now time.Time) (tp_sl.Decision, model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[ticker]
	if !ok || pos.State != model.PositionStateOpen {
		return tp_sl.Decision{}, model.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, ticker)
	}

	levels := tp_sl.Levels{
		Entry:        pos.EntryPrice,
		StopLoss:     pos.StopLoss,
		ProfitTarget: pos.ProfitTarget,
		LastClose:    pos.LastClose,
	}
	decision := tp_sl.Evaluate(bars, levels, pos.EntryDate, now, s.cfg.HoldPeriodDays)

	for _, b := range bars {
		if b.Date.Before(pos.EntryDate) || b.Date.Before(pos.LastBarAt) {
			continue
		}
		c := b.Close
		pos.LastClose = &c
		pos.LastBarAt = b.Date
	}
	pos.LastEvaluated = now

	return decision, *pos, nil
}

// Close settles the trade with the given exit decision and appends it to the ledger.
// Slippage is applied to the decision price.
func (s *Simulator) Close(tradeID string, decision tp_sl.Decision) (model.Trade, error) {
	return s.settle(tradeID, decision, s.cfg)
}

// CloseAtBroker is Close for a decision priced at the broker's exit fill.
func (s *Simulator) CloseAtBroker(tradeID string, decision tp_sl.Decision) (model.Trade, error) {
	return s.settle(tradeID, decision, s.brokerCosts())
}

// brokerCosts is the trading config with slippage removed; a broker fill
// price already carries it.
func (s *Simulator) brokerCosts() config.Trading {
	costs := s.cfg
	costs.SlippageRate = decimal.Zero
	return costs
}

func (s *Simulator) settle(tradeID string, decision tp_sl.Decision, costs config.Trading) (model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.closed[tradeID]; done {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrTradeClosed, tradeID)
	}
	ticker, ok := s.byTrade[tradeID]
	if !ok {
		return model.Trade{}, fmt.Errorf("%w: trade %s", ErrUnknownPosition, tradeID)
	}
	if !decision.Triggered() || !decision.Price.IsPositive() {
		return model.Trade{}, fmt.Errorf("%w: %s", ErrNoExit, tradeID)
	}
	pos := s.positions[ticker]

	proceeds := risk.CalculateExitProceeds(pos.Shares, decision.Price, costs)
	costBasis := pos.CostBasis()
	gross := proceeds.Gross.Sub(costBasis)
	net := proceeds.Net.Sub(costBasis).Sub(pos.CommissionPaid)
	returnPct := decimal.Zero
	if costBasis.IsPositive() {
		returnPct = net.Div(costBasis)
	}

	exitDate := decision.At
	trade := model.Trade{
		TradeID:         pos.TradeID,
		SignalID:        pos.SignalID,
		Ticker:          pos.Ticker,
		EntryDate:       pos.EntryDate,
		EntryPrice:      pos.EntryPrice,
		Shares:          pos.Shares,
		EntryCommission: pos.CommissionPaid,
		StopLoss:        pos.StopLoss,
		ProfitTarget:    pos.ProfitTarget,
		ExitDate:        &exitDate,
		ExitPrice:       proceeds.FillPrice,
		ExitReason:      decision.Reason,
		ExitCommission:  proceeds.Commission,
		GrossPnL:        gross,
		NetPnL:          net,
		ReturnPct:       returnPct,
		HoldingDays:     tp_sl.HoldingDays(pos.EntryDate, exitDate),
		Status:          model.TradeStatusClosed,
	}

	s.cash = s.cash.Add(proceeds.Net)
	delete(s.positions, ticker)
	delete(s.byTrade, tradeID)
	s.closed[tradeID] = struct{}{}
	s.ledger = append(s.ledger, trade)

	s.log.WithFields(logrus.Fields{
		"ticker":   trade.Ticker,
		"trade_id": tradeID,
		"reason":   trade.ExitReason,
		"exit":     trade.ExitPrice.StringFixed(4),
		"net_pnl":  trade.NetPnL.StringFixed(2),
		"cash":     s.cash.StringFixed(2),
	}).Info("position closed")

	return trade, nil
}

// EvaluateAndMaybeExit closes the position when the exit rules fire on bars.
// A nil trade means the position is still held.
func (s *Simulator) EvaluateAndMaybeExit(ticker string, bars []model.OHLCVDaily, now time.Time) (*model.Trade, error) {
	decision, pos, err := s.CheckExit(ticker, bars, now)
	if err != nil {
		return nil, err
	}
	if !decision.Triggered() {
		return nil, nil
	}
	trade, err := s.Close(pos.TradeID, decision)
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// EvaluateQuote is the live variant of EvaluateAndMaybeExit for a single quote.
// A nil price means no quote could be obtained.
func (s *Simulator) EvaluateQuote(ticker string, price *decimal.Decimal, now time.Time) (*model.Trade, error) {
	var bars []model.OHLCVDaily
	if price != nil {
		bars = append(bars, tp_sl.QuoteBar(ticker, *price, now))
	}
	return s.EvaluateAndMaybeExit(ticker, bars, now)
}

type CloseAllResult struct {
	Closed   []model.Trade
	Unclosed []string
}

// CloseAll force-closes every Open position at its latest price. Positions
// whose price cannot be obtained stay open and are listed in Unclosed.
func (s *Simulator) CloseAll(ctx context.Context, latest LatestPriceFunc, at time.Time) CloseAllResult {
	var res CloseAllResult

	for _, pos := range s.OpenPositions() {
		log := s.log.WithField("ticker", pos.Ticker)

		price, err := latest(ctx, pos.Ticker)
		if err != nil || price == nil || !price.IsPositive() {
			if err != nil {
				log = log.WithError(err)
			}
			log.Warn("no price for forced close, position left open")
			res.Unclosed = append(res.Unclosed, pos.Ticker)
			continue
		}

		trade, err := s.Close(pos.TradeID, tp_sl.Decision{Reason: model.ExitReasonBacktestEnd, Price: *price, At: at})
		if err != nil {
			log.WithError(err).Warn("forced close failed")
			res.Unclosed = append(res.Unclosed, pos.Ticker)
			continue
		}
		res.Closed = append(res.Closed, trade)
	}
	return res
}

// Restore rebuilds Open positions from persisted open trades and records the
// signal ids of every trade passed in as executed. Cash is not touched; the
// caller restores it separately.
func (s *Simulator) Restore(trades []model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, t := range trades {
		if t.SignalID != "" {
			s.consumed[t.SignalID] = struct{}{}
		}
		if t.Status != model.TradeStatusOpen {
			continue
		}
		if _, ok := s.positions[t.Ticker]; ok {
			errs = append(errs, fmt.Errorf("%w: %s", ErrPositionExists, t.Ticker))
			continue
		}
		s.positions[t.Ticker] = &model.Position{
			Ticker:         t.Ticker,
			TradeID:        t.TradeID,
			SignalID:       t.SignalID,
			State:          model.PositionStateOpen,
			SignalPrice:    t.EntryPrice,
			EntryPrice:     t.EntryPrice,
			EntryDate:      t.EntryDate,
			Shares:         t.Shares,
			CommissionPaid: t.EntryCommission,
			StopLoss:       t.StopLoss,
			ProfitTarget:   t.ProfitTarget,
			LastBarAt:      t.EntryDate,
			LastEvaluated:  t.EntryDate,
		}
		s.byTrade[t.TradeID] = t.Ticker
	}
	return errors.Join(errs...)
}

func (s *Simulator) Cash() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cash
}

func (s *Simulator) InitialCash() decimal.Decimal { return s.initialCash }

func (s *Simulator) Position(ticker string) (model.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[ticker]
	if !ok {
		return model.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of the Open positions ordered by ticker.
func (s *Simulator) OpenPositions() []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Position, 0, len(s.positions))
	for _, pos := range s.positions {
		if pos.State == model.PositionStateOpen {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Ledger returns a copy of the realized trades in close order.
func (s *Simulator) Ledger() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Trade, len(s.ledger))
	copy(out, s.ledger)
	return out
}

func validateSignal(sig *model.TradingSignal) error {
	switch {
	case sig == nil:
		return fmt.Errorf("%w: nil signal", ErrInvalidSignal)
	case sig.Ticker == "":
		return fmt.Errorf("%w: missing ticker", ErrInvalidSignal)
	case sig.Strength == model.SignalStrengthNone || sig.Strength == "":
		return fmt.Errorf("%w: %s has no strength", ErrInvalidSignal, sig.Ticker)
	case !sig.EntryPrice.IsPositive():
		return fmt.Errorf("%w: %s entry price %s", ErrInvalidSignal, sig.Ticker, sig.EntryPrice)
	case sig.TargetPositionSize < config.MinShares:
		return fmt.Errorf("%w: %s has %d shares, minimum is %d", ErrInvalidSignal, sig.Ticker, sig.TargetPositionSize, config.MinShares)
	}
	return nil
}

// RejectionReason names the audit reason for a lifecycle error.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMaxPositions):
		return "max_positions"
	case errors.Is(err, ErrPositionExists):
		return "position_exists"
	case errors.Is(err, ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, ErrInvalidSignal):
		return "invalid_signal"
	case errors.Is(err, ErrUnknownPosition):
		return "unknown_position"
	case errors.Is(err, ErrSignalConsumed):
		return "signal_consumed"
	default:
		return "error"
	}
}

// RejectionRecord is the audit row for a lifecycle step that failed.
func RejectionRecord(service, stage, ticker, signalID string, err error, at time.Time) model.Rejection {
	return model.Rejection{
		Service:    service,
		Stage:      stage,
		Ticker:     ticker,
		SignalID:   signalID,
		Reason:     RejectionReason(err),
		Message:    err.Error(),
		OccurredAt: at,
	}
}
