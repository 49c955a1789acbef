package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExitReason string

const (
	ExitReasonStopLoss     ExitReason = "STOP_LOSS"
	ExitReasonProfitTarget ExitReason = "PROFIT_TARGET"
	ExitReasonTimeBased    ExitReason = "TIME_BASED"
	ExitReasonNoData       ExitReason = "NO_DATA"
	ExitReasonBacktestEnd  ExitReason = "BACKTEST_END"
	ExitReasonManual       ExitReason = "MANUAL"
)

type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "OPEN"
	TradeStatusClosed TradeStatus = "CLOSED"
)

// Trade is the persisted record of a position. An OPEN trade carries only the
// entry leg; closing it is expressed as a TradeUpdate, never as field writes
// on a shared value.
type Trade struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	TradeID         string          `gorm:"size:36;not null;uniqueIndex" json:"trade_id"`
	SignalID        string          `gorm:"size:36;index" json:"signal_id"`
	Ticker          string          `gorm:"size:16;not null;index" json:"ticker"`
	EntryDate       time.Time       `gorm:"not null" json:"entry_date"`
	EntryPrice      decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	Shares          int64           `gorm:"not null" json:"shares"`
	EntryCommission decimal.Decimal `gorm:"type:numeric;not null" json:"entry_commission"`
	StopLoss        decimal.Decimal `gorm:"type:numeric" json:"stop_loss"`
	ProfitTarget    decimal.Decimal `gorm:"type:numeric" json:"profit_target"`
	ExitDate        *time.Time      `json:"exit_date,omitempty"`
	ExitPrice       decimal.Decimal `gorm:"type:numeric" json:"exit_price"`
	ExitReason      ExitReason      `gorm:"size:20" json:"exit_reason,omitempty"`
	ExitCommission  decimal.Decimal `gorm:"type:numeric" json:"exit_commission"`
	GrossPnL        decimal.Decimal `gorm:"column:gross_pnl;type:numeric" json:"gross_pnl"`
	NetPnL          decimal.Decimal `gorm:"column:net_pnl;type:numeric" json:"net_pnl"`
	ReturnPct       decimal.Decimal `gorm:"type:numeric" json:"return_pct"`
	HoldingDays     int             `json:"holding_days"`
	Status          TradeStatus     `gorm:"size:10;not null;default:OPEN;index" json:"status"`
	BrokerOrderID   string          `gorm:"size:64" json:"broker_order_id,omitempty"`
	Notes           string          `gorm:"size:512" json:"notes,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Trade) TableName() string {
	return "trades"
}

// CostBasis is the entry notional, excluding commission.
func (t Trade) CostBasis() decimal.Decimal {
	return t.EntryPrice.Mul(decimal.NewFromInt(t.Shares))
}

// TradeUpdate describes the exit leg of a trade. The persistence layer applies
// it; callers never mutate a stored Trade in place.
type TradeUpdate struct {
	TradeID        string
	ExitDate       time.Time
	ExitPrice      decimal.Decimal
	ExitReason     ExitReason
	ExitCommission decimal.Decimal
	GrossPnL       decimal.Decimal
	NetPnL         decimal.Decimal
	ReturnPct      decimal.Decimal
	HoldingDays    int
	Notes          string
}

// CloseUpdate builds the update request that turns the open row for t into its closed form.
func (t Trade) CloseUpdate() TradeUpdate {
	u := TradeUpdate{
		TradeID:        t.TradeID,
		ExitPrice:      t.ExitPrice,
		ExitReason:     t.ExitReason,
		ExitCommission: t.ExitCommission,
		GrossPnL:       t.GrossPnL,
		NetPnL:         t.NetPnL,
		ReturnPct:      t.ReturnPct,
		HoldingDays:    t.HoldingDays,
		Notes:          t.Notes,
	}
	if t.ExitDate != nil {
		u.ExitDate = *t.ExitDate
	}
	return u
}

// Columns maps the update onto trade column names.
func (u TradeUpdate) Columns() map[string]any {
	cols := map[string]any{
		"exit_date":       u.ExitDate,
		"exit_price":      u.ExitPrice,
		"exit_reason":     u.ExitReason,
		"exit_commission": u.ExitCommission,
		"gross_pnl":       u.GrossPnL,
		"net_pnl":         u.NetPnL,
		"return_pct":      u.ReturnPct,
		"holding_days":    u.HoldingDays,
		"status":          TradeStatusClosed,
	}
	if u.Notes != "" {
		cols["notes"] = u.Notes
	}
	return cols
}
