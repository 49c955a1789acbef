package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"insiderbot/src/model"
)

// ReadOnlyDB serves the report endpoints. The database user for this
// connection should have SELECT-only permissions.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB opens DATABASE_URL_READONLY when set and otherwise shares MainDB.
// It does not run any migrations and should only be used for reading data.
func InitReadOnlyDB() error {
	config := GetConfig()
	if config.DatabaseURLReadOnly == "" {
		if MainDB == nil {
			return fmt.Errorf("no read-only url configured and MainDB is not initialized")
		}
		ReadOnlyDB = MainDB
		return nil
	}

	db, err := Open(config, config.DatabaseURLReadOnly)
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var count int64
	if err := db.Model(&model.Trade{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access trades: %w", err)
	}
	logrus.WithFields(logrus.Fields{"trades": count}).Info("[ReadOnlyDB] trades reachable")

	ReadOnlyDB = db
	return nil
}
