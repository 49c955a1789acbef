package tp_sl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"insiderbot/src/model"
)

// Levels are the fixed exit prices of one long position.
type Levels struct {
	Entry        decimal.Decimal
	StopLoss     decimal.Decimal
	ProfitTarget decimal.Decimal

	// LastClose is the close seen by an earlier evaluation, nil if none.
	LastClose *decimal.Decimal
}

// Decision is the outcome of one evaluation. A zero Decision means hold.
type Decision struct {
	Reason model.ExitReason
	Price  decimal.Decimal
	At     time.Time
}

func (d Decision) Triggered() bool { return d.Reason != "" }

func IsStopHit(bar model.OHLCVDaily, stop decimal.Decimal) bool {
	return bar.Low.LessThanOrEqual(stop)
}

func IsTargetHit(bar model.OHLCVDaily, target decimal.Decimal) bool {
	return bar.High.GreaterThanOrEqual(target)
}

// HoldingDays counts whole calendar days between entry and now.
func HoldingDays(entryDate, now time.Time) int {
	if now.Before(entryDate) {
		return 0
	}
	return int(now.Sub(entryDate).Hours() / 24)
}

// Evaluate applies the exit rules to bars in date order:
//
// - stop: first bar with low <= stop exits at the stop
// - target: otherwise, high >= target exits at the target
// - time: nothing hit and the hold is over, exit at the last known close
// - no data: hold is over and no close was ever seen, exit at entry
//
// The first triggering bar wins; later bars are never looked at. Bars dated
// before entryDate are ignored, and so are bars dated after
// entryDate+maxHoldDays: the position is closed by time at the end of the
// window, whatever the market did afterwards.
func Evaluate(bars []model.OHLCVDaily, levels Levels, entryDate, now time.Time, maxHoldDays int) Decision {
	ordered := make([]model.OHLCVDaily, 0, len(bars))
	for _, b := range bars {
		if b.Date.Before(entryDate) {
			continue
		}
		ordered = append(ordered, b)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Date.Before(ordered[j].Date) })

	holdEnd := entryDate.AddDate(0, 0, maxHoldDays)
	var window []model.OHLCVDaily
	var late *model.OHLCVDaily
	for i, bar := range ordered {
		if bar.Date.After(holdEnd) {
			late = &ordered[i]
			break
		}
		if IsStopHit(bar, levels.StopLoss) {
			return Decision{Reason: model.ExitReasonStopLoss, Price: levels.StopLoss, At: bar.Date}
		}
		if IsTargetHit(bar, levels.ProfitTarget) {
			return Decision{Reason: model.ExitReasonProfitTarget, Price: levels.ProfitTarget, At: bar.Date}
		}
		window = append(window, bar)
	}

	if late == nil && HoldingDays(entryDate, now) < maxHoldDays {
		return Decision{}
	}

	if n := len(window); n > 0 {
		at := now
		if late != nil {
			at = window[n-1].Date
		}
		return Decision{Reason: model.ExitReasonTimeBased, Price: window[n-1].Close, At: at}
	}
	if levels.LastClose != nil {
		return Decision{Reason: model.ExitReasonTimeBased, Price: *levels.LastClose, At: now}
	}
	if late != nil {
		return Decision{Reason: model.ExitReasonTimeBased, Price: late.Close, At: late.Date}
	}
	return Decision{Reason: model.ExitReasonNoData, Price: levels.Entry, At: now}
}

// QuoteBar wraps a single live quote as a flat bar so live mode can share Evaluate.
func QuoteBar(ticker string, price decimal.Decimal, at time.Time) model.OHLCVDaily {
	return model.OHLCVDaily{
		Ticker: ticker,
		Date:   at,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: decimal.Zero,
	}
}
