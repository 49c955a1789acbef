package repository

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"insiderbot/src/database"
	"insiderbot/src/model"
)

var ErrTradeNotOpen = errors.New("trade not found or already closed")

// TradeRepository persists trades. Rows are written once on entry and changed
// afterwards only through ApplyUpdate.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

func (r *TradeRepository) Create(ctx context.Context, trade *model.Trade) error {
	if err := r.db.WithContext(ctx).Create(trade).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "Create",
			"ticker":   trade.Ticker,
			"trade_id": trade.TradeID,
		}).WithError(err).Error("Failed to save trade")
		return err
	}
	return nil
}

// CreateBatch stores already closed trades, e.g. a backtest ledger.
func (r *TradeRepository) CreateBatch(ctx context.Context, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(trades, 100).Error
}

func (r *TradeRepository) GetOpenTrades(ctx context.Context) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusOpen).
		Order("entry_date ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "GetOpenTrades",
		}).WithError(err).Error("Failed to fetch open trades")
		return nil, err
	}
	return trades, nil
}

// FindClosed returns closed trades in exit order.
func (r *TradeRepository) FindClosed(ctx context.Context) ([]model.Trade, error) {
	var trades []model.Trade
	err := r.db.WithContext(ctx).
		Where("status = ?", model.TradeStatusClosed).
		Order("exit_date ASC, id ASC").
		Find(&trades).Error
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// FindAll returns the newest trades first. limit <= 0 means no limit.
func (r *TradeRepository) FindAll(ctx context.Context, limit int) ([]model.Trade, error) {
	q := r.db.WithContext(ctx).Order("entry_date DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var trades []model.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}

// ApplyUpdate closes the OPEN trade named by u.TradeID.
func (r *TradeRepository) ApplyUpdate(ctx context.Context, u model.TradeUpdate) error {
	res := r.db.WithContext(ctx).
		Model(&model.Trade{}).
		Where("trade_id = ? AND status = ?", u.TradeID, model.TradeStatusOpen).
		Updates(u.Columns())
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":     "TradeRepository",
			"op":       "ApplyUpdate",
			"trade_id": u.TradeID,
		}).WithError(res.Error).Error("Failed to apply trade update")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrTradeNotOpen, u.TradeID)
	}

	logger.WithFields(map[string]interface{}{
		"repo":     "TradeRepository",
		"op":       "ApplyUpdate",
		"trade_id": u.TradeID,
		"reason":   u.ExitReason,
		"net_pnl":  u.NetPnL.StringFixed(2),
	}).Info("Trade closed")
	return nil
}
