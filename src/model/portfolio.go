package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is a point-in-time valuation of the run state.
type PortfolioSnapshot struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Date             time.Time       `gorm:"not null;index" json:"date"`
	Cash             decimal.Decimal `gorm:"type:numeric;not null" json:"cash"`
	Equity           decimal.Decimal `gorm:"type:numeric;not null" json:"equity"`
	TotalValue       decimal.Decimal `gorm:"type:numeric;not null" json:"total_value"`
	NumPositions     int             `gorm:"default:0" json:"num_positions"`
	CumulativeReturn float64         `json:"cumulative_return"`
	BenchmarkPrice   decimal.Decimal `gorm:"type:numeric" json:"benchmark_price"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio"
}
