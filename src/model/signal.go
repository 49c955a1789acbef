package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SignalStrength string

const (
	SignalStrengthNone   SignalStrength = "NONE"
	SignalStrengthLow    SignalStrength = "LOW"
	SignalStrengthMedium SignalStrength = "MEDIUM"
	SignalStrengthHigh   SignalStrength = "HIGH"
)

type SignalStatus string

const (
	SignalStatusActive    SignalStatus = "ACTIVE"
	SignalStatusExecuted  SignalStatus = "EXECUTED"
	SignalStatusExpired   SignalStatus = "EXPIRED"
	SignalStatusCancelled SignalStatus = "CANCELLED"
)

// TradingSignal is an actionable buy recommendation derived from a scored
// group of insider purchases. Status transitions belong to the execution layer.
type TradingSignal struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	SignalID           string          `gorm:"size:36;not null;uniqueIndex" json:"signal_id"`
	Ticker             string          `gorm:"size:16;not null;index" json:"ticker"`
	TransactionID      uint            `json:"transaction_id"`
	SignalDate         time.Time       `gorm:"not null;index" json:"signal_date"`
	Strength           SignalStrength  `gorm:"size:10;not null" json:"signal_strength"`
	ConvictionScore    float64         `json:"conviction_score"`
	EntryPrice         decimal.Decimal `gorm:"type:numeric;not null" json:"entry_price"`
	TargetPositionSize int64           `gorm:"not null" json:"target_position_size"`
	StopLoss           decimal.Decimal `gorm:"type:numeric;not null" json:"stop_loss"`
	ProfitTarget       decimal.Decimal `gorm:"type:numeric;not null" json:"profit_target"`
	Status             SignalStatus    `gorm:"size:20;not null;default:ACTIVE;index" json:"status"`
	Notes              string          `gorm:"size:1024" json:"notes"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (TradingSignal) TableName() string {
	return "trading_signals"
}
