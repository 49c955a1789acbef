package migrations

import (
	"fmt"

	"gorm.io/gorm"
)

var legacyRenames = []struct {
	table, from, to string
}{
	{"trades", "commission", "entry_commission"},
	{"trades", "ibkr_order_id", "broker_order_id"},
	{"portfolio", "spy_price", "benchmark_price"},
}

// PrepareLegacyTradeColumns adapts tables written by the previous bot so that
// AutoMigrate can add the new columns without failing on existing rows.
func PrepareLegacyTradeColumns(db *gorm.DB) error {
	m := db.Migrator()

	for _, r := range legacyRenames {
		if !m.HasTable(r.table) || !m.HasColumn(r.table, r.from) || m.HasColumn(r.table, r.to) {
			continue
		}
		if err := m.RenameColumn(r.table, r.from, r.to); err != nil {
			return fmt.Errorf("rename %s.%s to %s: %w", r.table, r.from, r.to, err)
		}
	}

	// trade_id is NOT NULL UNIQUE; old rows get a stable synthetic id first.
	if m.HasTable("trades") && !m.HasColumn("trades", "trade_id") {
		if err := db.Exec("ALTER TABLE trades ADD COLUMN trade_id varchar(36)").Error; err != nil {
			return fmt.Errorf("add trade_id to trades: %w", err)
		}
		if err := db.Exec("UPDATE trades SET trade_id = 'legacy-' || CAST(id AS varchar(16)) WHERE trade_id IS NULL").Error; err != nil {
			return fmt.Errorf("backfill trade_id on trades: %w", err)
		}
	}

	return nil
}
