package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"insiderbot/src/database"
	"insiderbot/src/model"
)

type PortfolioRepository struct {
	db *gorm.DB
}

func NewPortfolioRepository() *PortfolioRepository {
	return &PortfolioRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PortfolioRepository) WithDB(db *gorm.DB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

func (r *PortfolioRepository) Create(ctx context.Context, snap *model.PortfolioSnapshot) error {
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PortfolioRepository",
			"op":   "Create",
			"date": snap.Date,
		}).WithError(err).Error("Failed to save portfolio snapshot")
		return err
	}
	return nil
}

// Latest returns the most recent snapshot, or (nil, nil) if none exists.
func (r *PortfolioRepository) Latest(ctx context.Context) (*model.PortfolioSnapshot, error) {
	var snap model.PortfolioSnapshot
	err := r.db.WithContext(ctx).Order("date DESC, id DESC").First(&snap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// History returns snapshots dated at or after since, oldest first.
func (r *PortfolioRepository) History(ctx context.Context, since time.Time) ([]model.PortfolioSnapshot, error) {
	var rows []model.PortfolioSnapshot
	err := r.db.WithContext(ctx).
		Where("date >= ?", since).
		Order("date ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
