package risk

import (
	"github.com/shopspring/decimal"

	"insiderbot/src/config"
)

var (
	half    = decimal.NewFromFloat(0.5)
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// ----- sizing -----

// ConvictionMultiplier scales the base position between 0.5x and 1.5x.
func ConvictionMultiplier(score float64) decimal.Decimal {
	s := decimal.NewFromFloat(score)
	if s.IsNegative() {
		s = decimal.Zero
	}
	if s.GreaterThan(hundred) {
		s = hundred
	}
	return half.Add(s.Div(hundred))
}

// PositionSize returns the number of shares to buy at price for a signal with
// the given conviction score. The result is clamped to
// [config.MinShares, cfg.MaxSharesPerTrade]; a non-positive price yields zero.
func PositionSize(price decimal.Decimal, score float64, cfg config.Trading) int64 {
	if !price.IsPositive() {
		return 0
	}

	baseValue := cfg.AssumedCapital.Mul(cfg.PositionSizePct)
	positionValue := baseValue.Mul(ConvictionMultiplier(score))
	shares := positionValue.Div(price).Floor().IntPart()

	maxShares := cfg.MaxSharesPerTrade
	if maxShares < config.MinShares {
		maxShares = config.MinShares
	}
	if shares < config.MinShares {
		return config.MinShares
	}
	if shares > maxShares {
		return maxShares
	}
	return shares
}

// ----- frictions -----

// EntryFill inflates a quoted buy price by the slippage rate.
func EntryFill(price, slippageRate decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Add(slippageRate))
}

// ExitFill deflates a quoted sell price by the slippage rate.
func ExitFill(price, slippageRate decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Sub(slippageRate))
}

// Commission charged on a leg with the given notional value.
func Commission(value, commissionRate decimal.Decimal) decimal.Decimal {
	return value.Mul(commissionRate)
}

// EntryCost is the cash a buy of shares at the quoted price consumes.
type EntryCost struct {
	FillPrice  decimal.Decimal
	TradeValue decimal.Decimal
	Commission decimal.Decimal
	Total      decimal.Decimal
}

func CalculateEntryCost(shares int64, price decimal.Decimal, cfg config.Trading) EntryCost {
	fill := EntryFill(price, cfg.SlippageRate)
	value := fill.Mul(decimal.NewFromInt(shares))
	commission := Commission(value, cfg.CommissionRate)
	return EntryCost{
		FillPrice:  fill,
		TradeValue: value,
		Commission: commission,
		Total:      value.Add(commission),
	}
}

// ExitProceeds is the cash a sale of shares at the quoted price returns.
type ExitProceeds struct {
	FillPrice  decimal.Decimal
	Gross      decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

func CalculateExitProceeds(shares int64, price decimal.Decimal, cfg config.Trading) ExitProceeds {
	fill := ExitFill(price, cfg.SlippageRate)
	gross := fill.Mul(decimal.NewFromInt(shares))
	commission := Commission(gross, cfg.CommissionRate)
	return ExitProceeds{
		FillPrice:  fill,
		Gross:      gross,
		Commission: commission,
		Net:        gross.Sub(commission),
	}
}
