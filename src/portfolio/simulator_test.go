package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/config"
	"insiderbot/src/model"
	"insiderbot/src/signals"
	"insiderbot/src/tp_sl"
)

var start = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newSim(t *testing.T, cfg config.Trading, cash string) *Simulator {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	n := 0
	return NewSimulator(cfg, d(cash), logrus.NewEntry(logger)).WithIDFunc(func() string {
		n++
		return fmt.Sprintf("trade-%d", n)
	})
}

func signal(ticker, price string, shares int64) *model.TradingSignal {
	p := d(price)
	return &model.TradingSignal{
		SignalID:           "sig-" + ticker,
		Ticker:             ticker,
		Strength:           model.SignalStrengthHigh,
		ConvictionScore:    90,
		EntryPrice:         p,
		TargetPositionSize: shares,
		StopLoss:           p.Mul(d("0.97")),
		ProfitTarget:       p.Mul(d("1.06")),
		Status:             model.SignalStatusActive,
	}
}

func frictionless() config.Trading {
	cfg := config.Default()
	cfg.SlippageRate = decimal.Zero
	return cfg
}

func TestRoundTripAtSamePriceCostsBothCommissions(t *testing.T) {
	sim := newSim(t, frictionless(), "100000")

	pos, err := sim.Open(signal("XYZ", "50", 58), start)
	require.NoError(t, err)
	assert.Equal(t, "97097.1", sim.Cash().String())
	assert.Equal(t, "2.9", pos.CommissionPaid.String())

	trade, err := sim.Close(pos.TradeID, tp_sl.Decision{Reason: model.ExitReasonManual, Price: d("50"), At: start})
	require.NoError(t, err)

	assert.True(t, trade.GrossPnL.IsZero())
	assert.Equal(t, "-5.8", trade.NetPnL.String())
	assert.Equal(t, "-0.002", trade.ReturnPct.String())
	assert.True(t, trade.ReturnPct.IsNegative())
	assert.Equal(t, "99994.2", sim.Cash().String())
	assert.Empty(t, sim.OpenPositions())
	require.Len(t, sim.Ledger(), 1)
}

func TestOpenAppliesSlippageAndCommission(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")

	pos, err := sim.Open(signal("XYZ", "50", 100), start)
	require.NoError(t, err)

	assert.Equal(t, model.PositionStateOpen, pos.State)
	assert.Equal(t, "trade-1", pos.TradeID)
	assert.Equal(t, "50.05", pos.EntryPrice.String())
	assert.Equal(t, "5.005", pos.CommissionPaid.String())
	assert.Equal(t, "94989.995", sim.Cash().String())
	assert.True(t, pos.StopLoss.Equal(d("48.5")), "stop comes from the signal")
}

func TestSecondOpenForSameTickerRejected(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")

	_, err := sim.Open(signal("XYZ", "50", 58), start)
	require.NoError(t, err)
	cashAfterFirst := sim.Cash()

	_, err = sim.Open(signal("XYZ", "51", 58), start.AddDate(0, 0, 1))
	require.ErrorIs(t, err, ErrPositionExists)
	assert.True(t, sim.Cash().Equal(cashAfterFirst))
	assert.Len(t, sim.OpenPositions(), 1)
}

func TestCloseTwiceRejected(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	pos, err := sim.Open(signal("XYZ", "50", 58), start)
	require.NoError(t, err)

	exit := tp_sl.Decision{Reason: model.ExitReasonProfitTarget, Price: d("53"), At: start.AddDate(0, 0, 2)}
	_, err = sim.Close(pos.TradeID, exit)
	require.NoError(t, err)
	cashAfterClose := sim.Cash()

	_, err = sim.Close(pos.TradeID, exit)
	require.ErrorIs(t, err, ErrTradeClosed)
	assert.True(t, sim.Cash().Equal(cashAfterClose))
	assert.Len(t, sim.Ledger(), 1)
}

func TestExecutedSignalCannotReopen(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	sig := signal("XYZ", "50", 58)

	pos, err := sim.Open(sig, start)
	require.NoError(t, err)
	_, err = sim.Close(pos.TradeID, tp_sl.Decision{Reason: model.ExitReasonProfitTarget, Price: d("53"), At: start.AddDate(0, 0, 2)})
	require.NoError(t, err)
	cashAfterClose := sim.Cash()

	_, err = sim.Open(sig, start.AddDate(0, 0, 3))
	require.ErrorIs(t, err, ErrSignalConsumed)
	assert.Equal(t, "signal_consumed", RejectionReason(err))
	assert.True(t, sim.Cash().Equal(cashAfterClose))
	assert.Empty(t, sim.OpenPositions())

	fresh := signal("XYZ", "50", 58)
	fresh.SignalID = "sig-XYZ-2"
	_, err = sim.Open(fresh, start.AddDate(0, 0, 3))
	require.NoError(t, err)
}

func TestRestoredSignalsCannotReopen(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	require.NoError(t, sim.Restore([]model.Trade{
		{TradeID: "t-9", SignalID: "sig-XYZ", Ticker: "XYZ", Status: model.TradeStatusClosed},
	}))

	_, err := sim.Open(signal("XYZ", "50", 58), start)
	require.ErrorIs(t, err, ErrSignalConsumed)
	assert.Equal(t, "100000", sim.Cash().String())
}

func TestOpenRejections(t *testing.T) {
	tests := []struct {
		name string
		sig  *model.TradingSignal
		cash string
		max  int
		want error
	}{
		{name: "nil signal", sig: nil, cash: "100000", max: 10, want: ErrInvalidSignal},
		{name: "below minimum shares", sig: signal("XYZ", "50", 9), cash: "100000", max: 10, want: ErrInvalidSignal},
		{name: "negative shares", sig: signal("XYZ", "50", -20), cash: "100000", max: 10, want: ErrInvalidSignal},
		{name: "no strength", sig: func() *model.TradingSignal {
			s := signal("XYZ", "50", 20)
			s.Strength = model.SignalStrengthNone
			return s
		}(), cash: "100000", max: 10, want: ErrInvalidSignal},
		{name: "zero price", sig: signal("XYZ", "0", 20), cash: "100000", max: 10, want: ErrInvalidSignal},
		{name: "cash after frictions", sig: signal("XYZ", "100", 10), cash: "1000", max: 10, want: ErrInsufficientCash},
		{name: "no slots", sig: signal("XYZ", "50", 20), cash: "100000", max: 0, want: ErrMaxPositions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.MaxPositions = tt.max
			sim := newSim(t, cfg, tt.cash)

			_, err := sim.Open(tt.sig, start)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.cash, sim.Cash().String())
			assert.Empty(t, sim.OpenPositions())
		})
	}
}

func TestMaxPositions(t *testing.T) {
	cfg := config.Default()
	cfg.MaxPositions = 2
	sim := newSim(t, cfg, "100000")

	for _, tk := range []string{"AAA", "BBB"} {
		_, err := sim.Open(signal(tk, "20", 50), start)
		require.NoError(t, err)
	}
	_, err := sim.Open(signal("CCC", "20", 50), start)
	require.ErrorIs(t, err, ErrMaxPositions)
}

func TestPendingLifecycle(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")

	pending, err := sim.Begin(signal("XYZ", "50", 58), start)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatePending, pending.State)
	assert.Equal(t, "100000", sim.Cash().String())
	assert.Empty(t, sim.OpenPositions())

	_, err = sim.Begin(signal("XYZ", "50", 58), start)
	require.ErrorIs(t, err, ErrPositionExists)

	require.NoError(t, sim.Cancel("XYZ"))
	_, ok := sim.Position("XYZ")
	assert.False(t, ok)

	_, err = sim.Begin(signal("XYZ", "50", 58), start)
	require.NoError(t, err)
	pos, err := sim.Fill("XYZ", d("50.50"), start)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStateOpen, pos.State)
	assert.Equal(t, "50.5505", pos.EntryPrice.String())

	_, err = sim.Fill("XYZ", d("50"), start)
	require.ErrorIs(t, err, ErrNotPending)
	require.ErrorIs(t, sim.Cancel("XYZ"), ErrNotPending)
}

func TestBrokerFillsSkipSlippage(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")

	_, err := sim.Begin(signal("XYZ", "50", 58), start)
	require.NoError(t, err)
	pos, err := sim.FillAtBroker("XYZ", d("50.10"), start)
	require.NoError(t, err)
	assert.Equal(t, "50.1", pos.EntryPrice.String())
	// 58 * 50.10 = 2905.8, commission 2.9058
	assert.Equal(t, "97091.2942", sim.Cash().String())

	trade, err := sim.CloseAtBroker(pos.TradeID, tp_sl.Decision{Reason: model.ExitReasonProfitTarget, Price: d("53"), At: start.AddDate(0, 0, 2)})
	require.NoError(t, err)
	assert.Equal(t, "53", trade.ExitPrice.String())
	assert.Equal(t, "168.2", trade.GrossPnL.String())
	assert.Equal(t, "3.074", trade.ExitCommission.String())
}

func TestFillRechecksCash(t *testing.T) {
	sim := newSim(t, frictionless(), "1002")

	_, err := sim.Begin(signal("XYZ", "100", 10), start)
	require.NoError(t, err)

	_, err = sim.Fill("XYZ", d("101"), start)
	require.ErrorIs(t, err, ErrInsufficientCash)
	assert.Equal(t, "1002", sim.Cash().String())
	_, ok := sim.Position("XYZ")
	assert.False(t, ok)
}

func bar(day int, h, l, c string) model.OHLCVDaily {
	return model.OHLCVDaily{
		Ticker: "XYZ",
		Date:   start.AddDate(0, 0, day),
		Open:   d(c),
		High:   d(h),
		Low:    d(l),
		Close:  d(c),
	}
}

func TestSeniorClusterStopsOutOnDayFour(t *testing.T) {
	cfg := config.Default()
	events := []model.InsiderTransaction{
		{Ticker: "XYZ", InsiderName: "Jane Roe", InsiderTitle: "CEO", FilingDate: start.Add(-24 * time.Hour), Shares: d("10000"), PricePerShare: d("60"), TotalValue: d("600000")},
		{Ticker: "XYZ", InsiderName: "John Doe", InsiderTitle: "CFO", FilingDate: start.Add(-48 * time.Hour), Shares: d("8000"), PricePerShare: d("50"), TotalValue: d("400000")},
		{Ticker: "XYZ", InsiderName: "Ann Lee", InsiderTitle: "Director", FilingDate: start.Add(-60 * time.Hour), Shares: d("1000"), PricePerShare: d("50"), TotalValue: d("50000")},
	}
	price := d("50")

	sig, rej := signals.NewBuilder(cfg).Build("XYZ", events, &price, start)
	require.Nil(t, rej)
	require.GreaterOrEqual(t, sig.ConvictionScore, 75.0)
	require.Equal(t, model.SignalStrengthHigh, sig.Strength)
	require.GreaterOrEqual(t, sig.TargetPositionSize, config.MinShares)

	sim := newSim(t, cfg, "100000")
	_, err := sim.Open(sig, start)
	require.NoError(t, err)

	bars := []model.OHLCVDaily{
		bar(1, "51", "49.5", "50.5"),
		bar(2, "51.5", "49.8", "51"),
		bar(3, "52", "50", "50.2"),
		bar(4, "50.3", "48", "48.2"),
		bar(5, "55", "48", "54"),
		bar(6, "56", "53", "55"),
	}

	var trade *model.Trade
	for i := range bars {
		trade, err = sim.EvaluateAndMaybeExit("XYZ", bars[i:i+1], bars[i].Date)
		require.NoError(t, err)
		if trade != nil {
			break
		}
	}

	require.NotNil(t, trade)
	assert.Equal(t, model.ExitReasonStopLoss, trade.ExitReason)
	assert.Equal(t, start.AddDate(0, 0, 4), *trade.ExitDate)
	assert.Equal(t, 4, trade.HoldingDays)
	assert.True(t, trade.NetPnL.IsNegative())
	assert.True(t, trade.ExitPrice.Equal(d("48.5").Mul(d("0.999"))))
}

func TestTimeBasedExitUsesRememberedClose(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	_, err := sim.Open(signal("XYZ", "50", 20), start)
	require.NoError(t, err)

	trade, err := sim.EvaluateAndMaybeExit("XYZ", []model.OHLCVDaily{bar(2, "51", "49", "50.8")}, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Nil(t, trade)

	trade, err = sim.EvaluateAndMaybeExit("XYZ", nil, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, model.ExitReasonTimeBased, trade.ExitReason)
	assert.True(t, trade.ExitPrice.Equal(d("50.8").Mul(d("0.999"))))
}

func TestEvaluateQuoteNoDataAfterHold(t *testing.T) {
	sim := newSim(t, frictionless(), "100000")
	pos, err := sim.Open(signal("XYZ", "50", 20), start)
	require.NoError(t, err)

	trade, err := sim.EvaluateQuote("XYZ", nil, start.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Nil(t, trade)

	trade, err = sim.EvaluateQuote("XYZ", nil, start.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Equal(t, model.ExitReasonNoData, trade.ExitReason)
	assert.True(t, trade.ExitPrice.Equal(pos.EntryPrice))
}

func TestEvaluateUnknownTicker(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	_, err := sim.EvaluateQuote("NOPE", nil, start)
	require.ErrorIs(t, err, ErrUnknownPosition)
}

func TestCloseAllLeavesUnpricedPositionsOpen(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	for _, tk := range []string{"AAA", "BBB", "CCC"} {
		_, err := sim.Open(signal(tk, "20", 50), start)
		require.NoError(t, err)
	}

	latest := func(_ context.Context, ticker string) (*decimal.Decimal, error) {
		switch ticker {
		case "AAA":
			p := d("21")
			return &p, nil
		case "BBB":
			return nil, errors.New("feed down")
		default:
			return nil, nil
		}
	}

	end := start.AddDate(0, 1, 0)
	res := sim.CloseAll(context.Background(), latest, end)

	require.Len(t, res.Closed, 1)
	assert.Equal(t, "AAA", res.Closed[0].Ticker)
	assert.Equal(t, model.ExitReasonBacktestEnd, res.Closed[0].ExitReason)
	assert.Equal(t, []string{"BBB", "CCC"}, res.Unclosed)
	assert.Len(t, sim.OpenPositions(), 2)
	assert.Len(t, sim.Ledger(), 1)
}

func TestRestoreRebuildsOpenPositions(t *testing.T) {
	sim := newSim(t, config.Default(), "50000")
	trades := []model.Trade{
		{TradeID: "t-1", Ticker: "AAA", EntryDate: start, EntryPrice: d("20.02"), Shares: 50, EntryCommission: d("1.001"), StopLoss: d("19.4"), ProfitTarget: d("21.2"), Status: model.TradeStatusOpen},
		{TradeID: "t-2", Ticker: "BBB", Status: model.TradeStatusClosed},
		{TradeID: "t-3", Ticker: "AAA", Status: model.TradeStatusOpen},
	}

	err := sim.Restore(trades)
	require.ErrorIs(t, err, ErrPositionExists)

	open := sim.OpenPositions()
	require.Len(t, open, 1)
	assert.Equal(t, "t-1", open[0].TradeID)
	assert.Equal(t, "50000", sim.Cash().String())

	trade, err := sim.Close("t-1", tp_sl.Decision{Reason: model.ExitReasonManual, Price: d("21"), At: start.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, "AAA", trade.Ticker)
}

func TestSnapshotMarksPositions(t *testing.T) {
	sim := newSim(t, frictionless(), "10000")
	_, err := sim.Open(signal("AAA", "10", 100), start)
	require.NoError(t, err)
	_, err = sim.Open(signal("BBB", "20", 50), start)
	require.NoError(t, err)

	snap := sim.Snapshot(map[string]decimal.Decimal{"AAA": d("11")})

	// cash = 10000 - 1001 - 1001
	assert.Equal(t, "7998", snap.Cash.String())
	require.Len(t, snap.Positions, 2)
	assert.Equal(t, "1100", snap.Positions[0].MarketValue.String())
	assert.Equal(t, "100", snap.Positions[0].UnrealizedPnL.String())
	assert.Equal(t, "1000", snap.Positions[1].MarketValue.String())
	assert.Equal(t, "2100", snap.Equity.String())
	assert.Equal(t, "10098", snap.TotalValue.String())

	rec := snap.Record(start, d("10000"), nil)
	assert.Equal(t, 2, rec.NumPositions)
	assert.InDelta(t, 0.0098, rec.CumulativeReturn, 1e-9)
}

func TestConcurrentOpensNeverOverdrawCash(t *testing.T) {
	sim := newSim(t, frictionless(), "1000")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = sim.Open(signal(fmt.Sprintf("T%02d", i), "10", 10), start)
		}(i)
	}
	wg.Wait()

	assert.False(t, sim.Cash().IsNegative())
	assert.LessOrEqual(t, len(sim.OpenPositions()), 9)
}

func TestOpenTradeRecord(t *testing.T) {
	sim := newSim(t, config.Default(), "100000")
	pos, err := sim.Open(signal("XYZ", "50", 58), start)
	require.NoError(t, err)

	rec := OpenTradeRecord(pos, "paper-1")
	assert.Equal(t, model.TradeStatusOpen, rec.Status)
	assert.Equal(t, pos.TradeID, rec.TradeID)
	assert.Equal(t, "paper-1", rec.BrokerOrderID)
	assert.Nil(t, rec.ExitDate)
}
