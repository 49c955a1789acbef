package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"insiderbot/src/database"
	"insiderbot/src/model"
)

// TransactionRepository stores scraped insider purchases. It is the event
// source for signal generation.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TransactionRepository) WithDB(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Add inserts tx unless a row with the same data hash already exists.
// It reports whether a new row was written.
func (r *TransactionRepository) Add(ctx context.Context, tx *model.InsiderTransaction) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, fmt.Errorf("invalid transaction: %w", err)
	}

	tx.Ticker = strings.ToUpper(strings.TrimSpace(tx.Ticker))
	if tx.DataHash == "" {
		tx.DataHash = tx.ComputeHash()
	}
	if tx.ScrapedAt.IsZero() {
		tx.ScrapedAt = time.Now().UTC()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "data_hash"}},
			DoNothing: true,
		}).
		Create(tx)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TransactionRepository",
			"op":     "Add",
			"ticker": tx.Ticker,
		}).WithError(res.Error).Error("Failed to insert insider transaction")
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// AddBatch inserts every transaction and returns how many were new.
func (r *TransactionRepository) AddBatch(ctx context.Context, txs []model.InsiderTransaction) (int, error) {
	added := 0
	for i := range txs {
		ok, err := r.Add(ctx, &txs[i])
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "TransactionRepository",
		"op":    "AddBatch",
		"total": len(txs),
		"added": added,
	}).Info("Insider transactions stored")

	return added, nil
}

// RecentByFilingDate returns transactions filed at or after since, newest first.
func (r *TransactionRepository) RecentByFilingDate(ctx context.Context, since time.Time) ([]model.InsiderTransaction, error) {
	var rows []model.InsiderTransaction
	err := r.db.WithContext(ctx).
		Where("filing_date >= ?", since).
		Order("filing_date DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":  "TransactionRepository",
			"op":    "RecentByFilingDate",
			"since": since,
		}).WithError(err).Error("Failed to fetch recent transactions")
		return nil, err
	}
	return rows, nil
}

// Between returns transactions filed in [start, end], oldest first.
func (r *TransactionRepository) Between(ctx context.Context, start, end time.Time) ([]model.InsiderTransaction, error) {
	var rows []model.InsiderTransaction
	err := r.db.WithContext(ctx).
		Where("filing_date >= ? AND filing_date <= ?", start, end).
		Order("filing_date ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
