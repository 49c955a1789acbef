package model

import "time"

// Rejection records a signal or lifecycle step that was skipped, for auditing.
// Capacity and data-unavailable outcomes land here instead of failing a run.
type Rejection struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where it happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "backtest", "trader"
	Stage   string `gorm:"size:50;index" json:"stage"`    // e.g. "signal", "open", "exit"

	Ticker   string `gorm:"size:16;index" json:"ticker"`
	SignalID string `gorm:"size:36" json:"signal_id,omitempty"`
	Reason   string `gorm:"size:50;index" json:"reason"`
	Message  string `gorm:"type:text" json:"message"`

	OccurredAt time.Time `gorm:"index" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}
