package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionState string

const (
	PositionStatePending PositionState = "pending"
	PositionStateOpen    PositionState = "open"
)

// Position is an in-memory holding between entry and exit. It is owned by the
// portfolio simulator and never persisted directly; the trades table carries its
// durable form.
type Position struct {
	Ticker         string          `json:"ticker"`
	TradeID        string          `json:"trade_id"`
	SignalID       string          `json:"signal_id"`
	State          PositionState   `json:"state"`
	SignalPrice    decimal.Decimal `json:"signal_price"`
	EntryPrice     decimal.Decimal `json:"entry_price"`
	EntryDate      time.Time       `json:"entry_date"`
	Shares         int64           `json:"shares"`
	CommissionPaid decimal.Decimal `json:"commission_paid"`
	StopLoss       decimal.Decimal `json:"stop_loss"`
	ProfitTarget   decimal.Decimal `json:"profit_target"`

	// LastClose is the most recent observed close, nil until a price arrives.
	LastClose     *decimal.Decimal `json:"last_close,omitempty"`
	LastBarAt     time.Time        `json:"last_bar_at"`
	LastEvaluated time.Time        `json:"last_evaluated"`
}

// CostBasis is shares times the post-slippage entry price.
func (p Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(decimal.NewFromInt(p.Shares))
}
