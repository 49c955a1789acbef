package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"insiderbot/src/model"
)

type PositionMark struct {
	model.Position
	Mark          decimal.Decimal `json:"mark"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Snapshot is a point-in-time view of the run, marked to market.
type Snapshot struct {
	Cash        decimal.Decimal `json:"cash"`
	Equity      decimal.Decimal `json:"equity"`
	TotalValue  decimal.Decimal `json:"total_value"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Positions   []PositionMark  `json:"positions"`
}

// Snapshot marks Open positions with marks[ticker], falling back to the last
// observed close and then to the entry price.
func (s *Simulator) Snapshot(marks map[string]decimal.Decimal) Snapshot {
	positions := s.OpenPositions()
	ledger := s.Ledger()

	snap := Snapshot{Cash: s.Cash(), Equity: decimal.Zero, RealizedPnL: decimal.Zero}
	for _, pos := range positions {
		mark, ok := marks[pos.Ticker]
		if !ok {
			if pos.LastClose != nil {
				mark = *pos.LastClose
			} else {
				mark = pos.EntryPrice
			}
		}
		value := mark.Mul(decimal.NewFromInt(pos.Shares))
		snap.Positions = append(snap.Positions, PositionMark{
			Position:      pos,
			Mark:          mark,
			MarketValue:   value,
			UnrealizedPnL: value.Sub(pos.CostBasis()),
		})
		snap.Equity = snap.Equity.Add(value)
	}
	for _, t := range ledger {
		snap.RealizedPnL = snap.RealizedPnL.Add(t.NetPnL)
	}
	snap.TotalValue = snap.Cash.Add(snap.Equity)
	return snap
}

// Record converts the snapshot into its persisted row.
func (snap Snapshot) Record(date time.Time, initialCapital decimal.Decimal, benchmark *decimal.Decimal) model.PortfolioSnapshot {
	cumulative := 0.0
	if initialCapital.IsPositive() {
		cumulative = snap.TotalValue.Sub(initialCapital).Div(initialCapital).InexactFloat64()
	}
	rec := model.PortfolioSnapshot{
		Date:             date,
		Cash:             snap.Cash,
		Equity:           snap.Equity,
		TotalValue:       snap.TotalValue,
		NumPositions:     len(snap.Positions),
		CumulativeReturn: cumulative,
	}
	if benchmark != nil {
		rec.BenchmarkPrice = *benchmark
	}
	return rec
}

// OpenTradeRecord is the persisted form of a freshly filled position.
func OpenTradeRecord(pos model.Position, brokerOrderID string) model.Trade {
	return model.Trade{
		TradeID:         pos.TradeID,
		SignalID:        pos.SignalID,
		Ticker:          pos.Ticker,
		EntryDate:       pos.EntryDate,
		EntryPrice:      pos.EntryPrice,
		Shares:          pos.Shares,
		EntryCommission: pos.CommissionPaid,
		StopLoss:        pos.StopLoss,
		ProfitTarget:    pos.ProfitTarget,
		Status:          model.TradeStatusOpen,
		BrokerOrderID:   brokerOrderID,
	}
}
