// Package conviction scores a cluster of same-ticker insider purchases.
package conviction

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"insiderbot/src/model"
)

const (
	maxScore        = 100.0
	maxValuePoints  = 40.0
	valueScale      = 20.0
	maxBreadth      = 20.0
	perInsider      = 5.0
	seniorPoints    = 20.0
	directorPoints  = 10.0
	recencyPoints   = 10.0
	clusterPoints   = 10.0
	recencyWindow   = 3 * 24 * time.Hour
	clusterMinCount = 3
)

// ----- strength thresholds -----

const (
	HighThreshold   = 75.0
	MediumThreshold = 50.0
	LowThreshold    = 30.0
)

var ErrEmptyGroup = errors.New("conviction: empty transaction group")

// seniorTitles are matched as case-insensitive substrings of the insider title.
var seniorTitles = []string{"ceo", "chief executive", "cfo", "chief financial"}

// Breakdown is the per-factor contribution behind a score.
type Breakdown struct {
	Value     float64
	Breadth   float64
	Seniority float64
	Timing    float64
	Total     float64
}

// Score returns the conviction score in [0,100] for one ticker's events.
// The caller has already restricted events to the lookback window.
func Score(events []model.InsiderTransaction, now time.Time, minTransactionValue decimal.Decimal) (float64, error) {
	b, err := Explain(events, now, minTransactionValue)
	if err != nil {
		return 0, err
	}
	return b.Total, nil
}

// Explain computes the score and keeps each factor's contribution.
func Explain(events []model.InsiderTransaction, now time.Time, minTransactionValue decimal.Decimal) (Breakdown, error) {
	if len(events) == 0 {
		return Breakdown{}, ErrEmptyGroup
	}

	var b Breakdown
	b.Value = valueFactor(events, minTransactionValue)
	b.Breadth = math.Min(maxBreadth, perInsider*float64(DistinctInsiders(events)))
	b.Seniority = seniorityFactor(events)
	b.Timing = timingFactor(events, now)

	b.Total = math.Min(maxScore, b.Value+b.Breadth+b.Seniority+b.Timing)
	if b.Total < 0 {
		b.Total = 0
	}
	return b, nil
}

// StrengthFor maps a score onto the fixed strength thresholds.
func StrengthFor(score float64) model.SignalStrength {
	switch {
	case score >= HighThreshold:
		return model.SignalStrengthHigh
	case score >= MediumThreshold:
		return model.SignalStrengthMedium
	case score >= LowThreshold:
		return model.SignalStrengthLow
	default:
		return model.SignalStrengthNone
	}
}

// TotalValue sums the dollar value of the group.
func TotalValue(events []model.InsiderTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range events {
		sum = sum.Add(e.TotalValue)
	}
	return sum
}

// DistinctInsiders counts unique insider names, in first-seen order.
func DistinctInsiders(events []model.InsiderTransaction) int {
	return len(InsiderNames(events))
}

// InsiderNames returns unique insider names in first-seen order.
func InsiderNames(events []model.InsiderTransaction) []string {
	seen := make(map[string]struct{}, len(events))
	names := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.InsiderName]; ok {
			continue
		}
		seen[e.InsiderName] = struct{}{}
		names = append(names, e.InsiderName)
	}
	return names
}

func valueFactor(events []model.InsiderTransaction, threshold decimal.Decimal) float64 {
	if !threshold.IsPositive() {
		return maxValuePoints
	}
	ratio := TotalValue(events).Div(threshold).InexactFloat64()
	if ratio <= 0 {
		return 0
	}
	return math.Min(maxValuePoints, valueScale*math.Log1p(ratio))
}

func seniorityFactor(events []model.InsiderTransaction) float64 {
	for _, e := range events {
		if IsSenior(e.InsiderTitle) {
			return seniorPoints
		}
	}
	return directorPoints
}

// IsSenior reports whether a title names a CEO or CFO.
func IsSenior(title string) bool {
	t := strings.ToLower(title)
	for _, s := range seniorTitles {
		if strings.Contains(t, s) {
			return true
		}
	}
	return false
}

func timingFactor(events []model.InsiderTransaction, now time.Time) float64 {
	points := 0.0
	cutoff := now.Add(-recencyWindow)
	for _, e := range events {
		if !e.FilingDate.Before(cutoff) {
			points += recencyPoints
			break
		}
	}
	if len(events) >= clusterMinCount {
		points += clusterPoints
	}
	return points
}
