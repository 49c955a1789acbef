// Package config holds the trading parameters shared by the scorer, signal
// builder, portfolio simulator, and backtester. Values are loaded once and then
// passed by value; nothing in the engine mutates them.
package config

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Trading struct {
	MinTransactionValue decimal.Decimal `envconfig:"MIN_TRANSACTION_VALUE" default:"100000"`
	PositionSizePct     decimal.Decimal `envconfig:"POSITION_SIZE_PCT" default:"0.02"`
	MaxPositions        int             `envconfig:"MAX_POSITIONS" default:"10"`
	StopLossPct         decimal.Decimal `envconfig:"STOP_LOSS_PCT" default:"0.03"`
	ProfitTargetPct     decimal.Decimal `envconfig:"PROFIT_TARGET_PCT" default:"0.06"`
	HoldPeriodDays      int             `envconfig:"HOLD_PERIOD_DAYS" default:"10"`
	MinStockPrice       decimal.Decimal `envconfig:"MIN_STOCK_PRICE" default:"5.00"`
	MaxStockPrice       decimal.Decimal `envconfig:"MAX_STOCK_PRICE" default:"1000.00"`
	CommissionRate      decimal.Decimal `envconfig:"COMMISSION_RATE" default:"0.001"`
	SlippageRate        decimal.Decimal `envconfig:"SLIPPAGE_RATE" default:"0.001"`
	LookbackDays        int             `envconfig:"LOOKBACK_DAYS" default:"7"`
	InitialCapital      decimal.Decimal `envconfig:"INITIAL_CAPITAL" default:"100000"`

	// AssumedCapital is the notional account size used for signal sizing,
	// independent of the cash actually available to a run.
	AssumedCapital    decimal.Decimal `envconfig:"ASSUMED_CAPITAL" default:"100000"`
	MaxSharesPerTrade int64           `envconfig:"MAX_SHARES_PER_TRADE" default:"1000"`
}

// MinShares is the smallest position the engine will size or open.
const MinShares int64 = 10

func GetConfig() Trading {
	var config Trading
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Default returns the documented defaults without reading the environment.
func Default() Trading {
	return Trading{
		MinTransactionValue: decimal.NewFromInt(100000),
		PositionSizePct:     decimal.RequireFromString("0.02"),
		MaxPositions:        10,
		StopLossPct:         decimal.RequireFromString("0.03"),
		ProfitTargetPct:     decimal.RequireFromString("0.06"),
		HoldPeriodDays:      10,
		MinStockPrice:       decimal.RequireFromString("5.00"),
		MaxStockPrice:       decimal.RequireFromString("1000.00"),
		CommissionRate:      decimal.RequireFromString("0.001"),
		SlippageRate:        decimal.RequireFromString("0.001"),
		LookbackDays:        7,
		InitialCapital:      decimal.NewFromInt(100000),
		AssumedCapital:      decimal.NewFromInt(100000),
		MaxSharesPerTrade:   1000,
	}
}

var ErrInvalidConfig = errors.New("invalid trading config")

// Validate rejects parameter combinations the engine cannot run with.
func (c Trading) Validate() error {
	one := decimal.NewFromInt(1)
	check := func(ok bool, format string, args ...any) error {
		if ok {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	for _, err := range []error{
		check(c.MinTransactionValue.IsPositive(), "min_transaction_value must be positive, got %s", c.MinTransactionValue),
		check(c.PositionSizePct.IsPositive() && c.PositionSizePct.LessThanOrEqual(one), "position_size_pct must be in (0,1], got %s", c.PositionSizePct),
		check(c.MaxPositions > 0, "max_positions must be positive, got %d", c.MaxPositions),
		check(c.StopLossPct.IsPositive() && c.StopLossPct.LessThan(one), "stop_loss_pct must be in (0,1), got %s", c.StopLossPct),
		check(c.ProfitTargetPct.IsPositive(), "profit_target_pct must be positive, got %s", c.ProfitTargetPct),
		check(c.HoldPeriodDays > 0, "hold_period_days must be positive, got %d", c.HoldPeriodDays),
		check(!c.MinStockPrice.IsNegative() && c.MinStockPrice.LessThanOrEqual(c.MaxStockPrice), "stock price range [%s, %s] is invalid", c.MinStockPrice, c.MaxStockPrice),
		check(!c.CommissionRate.IsNegative() && c.CommissionRate.LessThan(one), "commission_rate must be in [0,1), got %s", c.CommissionRate),
		check(!c.SlippageRate.IsNegative() && c.SlippageRate.LessThan(one), "slippage_rate must be in [0,1), got %s", c.SlippageRate),
		check(c.LookbackDays > 0, "lookback_days must be positive, got %d", c.LookbackDays),
		check(!c.InitialCapital.IsNegative(), "initial_capital must not be negative, got %s", c.InitialCapital),
		check(c.AssumedCapital.IsPositive(), "assumed_capital must be positive, got %s", c.AssumedCapital),
		check(c.MaxSharesPerTrade >= MinShares, "max_shares_per_trade must be at least %d, got %d", MinShares, c.MaxSharesPerTrade),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
