package model

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// InsiderTransaction is one observed open-market insider purchase.
// Rows are immutable once ingested; DataHash deduplicates repeated scrapes.
type InsiderTransaction struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Ticker          string          `gorm:"size:16;not null;index" json:"ticker"`
	CompanyName     string          `gorm:"size:255" json:"company_name"`
	InsiderName     string          `gorm:"size:255;not null" json:"insider_name"`
	InsiderTitle    string          `gorm:"size:255" json:"insider_title"`
	TransactionDate time.Time       `gorm:"not null;index" json:"transaction_date"`
	FilingDate      time.Time       `gorm:"not null;index" json:"filing_date"`
	TransactionType string          `gorm:"size:16" json:"transaction_type"`
	Shares          decimal.Decimal `gorm:"type:numeric;not null" json:"shares"`
	PricePerShare   decimal.Decimal `gorm:"type:numeric;not null" json:"price_per_share"`
	TotalValue      decimal.Decimal `gorm:"type:numeric;not null" json:"total_value"`
	SharesOwned     decimal.Decimal `gorm:"type:numeric" json:"shares_owned_after"`
	Is10b51Plan     bool            `gorm:"not null;default:false" json:"is_10b5_1_plan"`
	SECFormURL      string          `gorm:"size:512" json:"sec_form_url"`
	DataHash        string          `gorm:"size:64;uniqueIndex" json:"data_hash"`
	ScrapedAt       time.Time       `json:"scraped_at"`
}

func (InsiderTransaction) TableName() string {
	return "insider_transactions"
}

// ComputeHash derives the deduplication key from the fields that identify a filing.
func (t *InsiderTransaction) ComputeHash() string {
	key := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		strings.ToUpper(t.Ticker),
		strings.ToLower(t.InsiderName),
		t.TransactionDate.UTC().Format("2006-01-02"),
		t.FilingDate.UTC().Format(time.RFC3339),
		t.Shares.String(),
		t.PricePerShare.String(),
	)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Validate reports the first structural problem with the record, if any.
func (t *InsiderTransaction) Validate() error {
	switch {
	case strings.TrimSpace(t.Ticker) == "":
		return errors.New("missing ticker")
	case strings.TrimSpace(t.InsiderName) == "":
		return errors.New("missing insider name")
	case t.FilingDate.IsZero():
		return errors.New("missing filing date")
	case t.Shares.IsNegative():
		return fmt.Errorf("negative shares %s", t.Shares)
	case t.PricePerShare.IsNegative():
		return fmt.Errorf("negative price per share %s", t.PricePerShare)
	case t.TotalValue.IsNegative():
		return fmt.Errorf("negative total value %s", t.TotalValue)
	}
	return nil
}
