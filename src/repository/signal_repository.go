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

var ErrSignalNotFound = errors.New("signal not found")

type SignalRepository struct {
	db *gorm.DB
}

func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or custom sessions/transactions.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

func (r *SignalRepository) Create(ctx context.Context, signal *model.TradingSignal) error {
	if err := r.db.WithContext(ctx).Create(signal).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "Create",
			"ticker":    signal.Ticker,
			"signal_id": signal.SignalID,
		}).WithError(err).Error("Failed to save signal")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SignalRepository",
		"op":        "Create",
		"ticker":    signal.Ticker,
		"signal_id": signal.SignalID,
		"strength":  signal.Strength,
	}).Debug("Signal saved")
	return nil
}

// FindActive returns ACTIVE signals, strongest conviction first.
func (r *SignalRepository) FindActive(ctx context.Context) ([]model.TradingSignal, error) {
	var signals []model.TradingSignal
	err := r.db.WithContext(ctx).
		Where("status = ?", model.SignalStatusActive).
		Order("conviction_score DESC, signal_date DESC").
		Find(&signals).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindActive",
		}).WithError(err).Error("Failed to fetch active signals")
		return nil, err
	}
	return signals, nil
}

// FindBySignalID returns (nil, nil) if not found.
func (r *SignalRepository) FindBySignalID(ctx context.Context, signalID string) (*model.TradingSignal, error) {
	var signal model.TradingSignal
	err := r.db.WithContext(ctx).Where("signal_id = ?", signalID).First(&signal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // not found is not an error
		}
		return nil, err
	}
	return &signal, nil
}

func (r *SignalRepository) UpdateStatus(ctx context.Context, signalID string, status model.SignalStatus) error {
	res := r.db.WithContext(ctx).
		Model(&model.TradingSignal{}).
		Where("signal_id = ?", signalID).
		Update("status", status)
	if res.Error != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "SignalRepository",
			"op":        "UpdateStatus",
			"signal_id": signalID,
			"status":    status,
		}).WithError(res.Error).Error("Failed to update signal status")
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	return nil
}
