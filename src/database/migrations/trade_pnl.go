package migrations

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"insiderbot/src/model"
)

var tradeNumericColumns = []string{
	"entry_commission", "exit_commission", "exit_price", "stop_loss",
	"profit_target", "gross_pnl", "net_pnl", "return_pct",
}

// recomputeClosedTradeNetPnL rewrites closed trades recorded without an exit
// commission so that net P&L includes commission on both legs.
func recomputeClosedTradeNetPnL(rate decimal.Decimal) func(*gorm.DB) error {
	return func(db *gorm.DB) error {
		for _, col := range tradeNumericColumns {
			if err := db.Exec(fmt.Sprintf("UPDATE trades SET %s = 0 WHERE %s IS NULL", col, col)).Error; err != nil {
				return fmt.Errorf("zero null %s: %w", col, err)
			}
		}

		var trades []model.Trade
		if err := db.
			Where("status = ? AND exit_commission = 0 AND exit_price > 0", model.TradeStatusClosed).
			Find(&trades).Error; err != nil {
			return fmt.Errorf("load legacy closed trades: %w", err)
		}

		for _, t := range trades {
			u := RecomputedPnL(t, rate)
			if err := db.Model(&model.Trade{}).Where("id = ?", t.ID).Updates(map[string]any{
				"entry_commission": u.EntryCommission,
				"exit_commission":  u.ExitCommission,
				"gross_pnl":        u.GrossPnL,
				"net_pnl":          u.NetPnL,
				"return_pct":       u.ReturnPct,
			}).Error; err != nil {
				return fmt.Errorf("update trade %d: %w", t.ID, err)
			}
		}
		return nil
	}
}

// RecomputedPnL returns t with commissions and P&L derived from its entry and
// exit prices. A missing entry commission is charged at rate.
func RecomputedPnL(t model.Trade, rate decimal.Decimal) model.Trade {
	shares := decimal.NewFromInt(t.Shares)
	entryValue := t.EntryPrice.Mul(shares)
	exitValue := t.ExitPrice.Mul(shares)

	if !t.EntryCommission.IsPositive() {
		t.EntryCommission = entryValue.Mul(rate)
	}
	t.ExitCommission = exitValue.Mul(rate)
	t.GrossPnL = exitValue.Sub(entryValue)
	t.NetPnL = t.GrossPnL.Sub(t.EntryCommission).Sub(t.ExitCommission)
	t.ReturnPct = decimal.Zero
	if entryValue.IsPositive() {
		t.ReturnPct = t.NetPnL.Div(entryValue)
	}
	return t
}

func uppercaseTransactionTickers(db *gorm.DB) error {
	var rows []model.InsiderTransaction
	if err := db.Select("id", "ticker").Find(&rows).Error; err != nil {
		return err
	}
	for _, r := range rows {
		upper := strings.ToUpper(strings.TrimSpace(r.Ticker))
		if upper == r.Ticker {
			continue
		}
		if err := db.Model(&model.InsiderTransaction{}).Where("id = ?", r.ID).Update("ticker", upper).Error; err != nil {
			return fmt.Errorf("update ticker on transaction %d: %w", r.ID, err)
		}
	}
	return nil
}
