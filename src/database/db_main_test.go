package database

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/model"
)

func TestMigrateFreshDatabase(t *testing.T) {
	db, err := OpenMemory(fmt.Sprintf("db_main_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	require.NoError(t, Migrate(db, decimal.RequireFromString("0.001")))

	m := db.Migrator()
	for _, col := range []string{"gross_pnl", "net_pnl", "exit_commission", "return_pct"} {
		assert.True(t, m.HasColumn(&model.Trade{}, col), col)
	}
	assert.False(t, m.HasColumn(&model.Trade{}, "net_pn_l"))

	exit := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	trade := model.Trade{
		TradeID: "t-1", Ticker: "XYZ", EntryDate: exit.AddDate(0, 0, -2),
		EntryPrice: decimal.NewFromInt(10), Shares: 10, Status: model.TradeStatusOpen,
	}
	require.NoError(t, db.Create(&trade).Error)

	closed := trade
	closed.ExitDate = &exit
	closed.ExitPrice = decimal.NewFromInt(11)
	closed.ExitReason = model.ExitReasonProfitTarget
	closed.GrossPnL = decimal.NewFromInt(10)
	closed.NetPnL = decimal.NewFromInt(9)
	require.NoError(t, db.Model(&model.Trade{}).Where("trade_id = ?", "t-1").Updates(closed.CloseUpdate().Columns()).Error)

	var got model.Trade
	require.NoError(t, db.Where("trade_id = ?", "t-1").First(&got).Error)
	assert.Equal(t, model.TradeStatusClosed, got.Status)
	assert.True(t, got.NetPnL.Equal(decimal.NewFromInt(9)), got.NetPnL.String())
	assert.True(t, got.GrossPnL.Equal(decimal.NewFromInt(10)))
}
