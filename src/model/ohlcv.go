package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OHLCVDaily is one end-of-day bar for an equity ticker.
type OHLCVDaily struct {
	ID       uint            `gorm:"primaryKey" json:"-"`
	Ticker   string          `json:"ticker" gorm:"type:varchar(16);not null;uniqueIndex:ux_ohlcv_daily_ticker_date,priority:1;index:idx_ohlcv_daily_ticker_date,priority:1"`
	Date     time.Time       `json:"date"   gorm:"not null;uniqueIndex:ux_ohlcv_daily_ticker_date,priority:2;index:idx_ohlcv_daily_ticker_date,priority:2"`
	Open     decimal.Decimal `json:"open"   gorm:"type:numeric;not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:numeric;not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:numeric;not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:numeric;not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:numeric;not null"`
}

func (OHLCVDaily) TableName() string {
	return "ohlcv_daily"
}
