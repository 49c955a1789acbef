package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"insiderbot/src/database"
	"insiderbot/src/model"
)

// OHLCVRepository stores daily bars and serves them as a price source.
type OHLCVRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewOHLCVRepository() *OHLCVRepository {
	return &OHLCVRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *OHLCVRepository) WithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{db: db, now: r.now}
}

// AsOf pins "now" for CurrentPrice, so a backtest sees no bar after t.
func (r *OHLCVRepository) AsOf(t time.Time) *OHLCVRepository {
	return &OHLCVRepository{db: r.db, now: func() time.Time { return t }}
}

// UpsertBars inserts bars, overwriting prices of an existing (ticker, date).
func (r *OHLCVRepository) UpsertBars(ctx context.Context, bars []model.OHLCVDaily) error {
	if len(bars) == 0 {
		return nil
	}
	for i := range bars {
		bars[i].Ticker = strings.ToUpper(bars[i].Ticker)
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ticker"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(bars, 500).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "OHLCVRepository",
			"op":     "UpsertBars",
			"ticker": bars[0].Ticker,
			"count":  len(bars),
		}).WithError(err).Error("Failed to upsert daily bars")
		return err
	}
	return nil
}

// PriceHistory returns bars for ticker with date in [start, end], ascending.
func (r *OHLCVRepository) PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCVDaily, error) {
	var rows []model.OHLCVDaily
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND date >= ? AND date <= ?", strings.ToUpper(ticker), start, end).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestClose returns the close of the last bar dated at or before asOf.
// Returns (nil, nil) when there is none.
func (r *OHLCVRepository) LatestClose(ctx context.Context, ticker string, asOf time.Time) (*decimal.Decimal, error) {
	var bar model.OHLCVDaily
	err := r.db.WithContext(ctx).
		Where("ticker = ? AND date <= ?", strings.ToUpper(ticker), asOf).
		Order("date DESC").
		First(&bar).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bar.Close, nil
}

// CurrentPrice is the latest stored close.
func (r *OHLCVRepository) CurrentPrice(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	return r.LatestClose(ctx, ticker, r.now())
}
