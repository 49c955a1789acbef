package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"insiderbot/src/database"
	"insiderbot/src/model"
)

// RejectionRepository keeps an audit trail of skipped signals and failed steps.
type RejectionRepository struct {
	db *gorm.DB
}

func NewRejectionRepository() *RejectionRepository {
	return &RejectionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *RejectionRepository) WithDB(db *gorm.DB) *RejectionRepository {
	return &RejectionRepository{db: db}
}

// Create persists a new rejection in the database.
func (r *RejectionRepository) Create(ctx context.Context, rej *model.Rejection) error {
	if rej.OccurredAt.IsZero() {
		rej.OccurredAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(rej).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "RejectionRepository",
			"op":     "Create",
			"ticker": rej.Ticker,
			"reason": rej.Reason,
		}).WithError(err).Error("Failed to save rejection")
		return err
	}
	return nil
}

func (r *RejectionRepository) CreateBatch(ctx context.Context, rows []model.Rejection) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, 100).Error
}

func (r *RejectionRepository) FindRecent(ctx context.Context, limit int) ([]model.Rejection, error) {
	if limit <= 0 {
		limit = 50 // default safety limit
	}
	var rows []model.Rejection
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
