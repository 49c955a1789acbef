package database

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"insiderbot/src/database/migrations"
	"insiderbot/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

// Models lists every table owned by the write-side schema.
func Models() []any {
	return []any{
		&model.InsiderTransaction{},
		&model.TradingSignal{},
		&model.Trade{},
		&model.OHLCVDaily{},
		&model.PortfolioSnapshot{},
		&model.Rejection{},
		&migrations.DataMigration{},
	}
}

// InitMainDB initializes the main (read/write) database connection and runs migrations.
// This should be called once at application startup (e.g. in main()).
func InitMainDB(commissionRate decimal.Decimal) error {
	config := GetConfig()

	db, err := Open(config, config.DatabaseURLMain)
	if err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithFields(logrus.Fields{"driver": config.DatabaseDriver}).Info("[database] MainDB connection established")

	if err := Migrate(MainDB, commissionRate); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}

// Migrate brings db up to the current schema and applies pending data migrations.
func Migrate(db *gorm.DB, commissionRate decimal.Decimal) error {
	// Rename legacy trade columns before AutoMigrate adds the new ones.
	if err := migrations.PrepareLegacyTradeColumns(db); err != nil {
		return fmt.Errorf("failed to prepare legacy trade columns: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db, commissionRate); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}
	return nil
}
