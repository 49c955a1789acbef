package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"insiderbot/src/config"
)

const dateLayout = "2006-01-02"

type Config struct {
	StartDate       string          `envconfig:"BACKTEST_START_DATE"`
	EndDate         string          `envconfig:"BACKTEST_END_DATE"`
	InitialCapital  decimal.Decimal `envconfig:"BACKTEST_INITIAL_CAPITAL" default:"100000"`
	Commission      decimal.Decimal `envconfig:"BACKTEST_COMMISSION" default:"0.001"`
	Slippage        decimal.Decimal `envconfig:"BACKTEST_SLIPPAGE" default:"0.001"`
	BenchmarkTicker string          `envconfig:"BENCHMARK_TICKER" default:"SPY"`
	Persist         bool            `envconfig:"BACKTEST_PERSIST" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// Apply overlays the backtest capital and friction settings on the trading parameters.
func (c Config) Apply(t config.Trading) config.Trading {
	t.InitialCapital = c.InitialCapital
	t.CommissionRate = c.Commission
	t.SlippageRate = c.Slippage
	return t
}

// Range parses the configured dates. An empty end means today and an empty
// start means one year before the end.
func (c Config) Range(now time.Time) (time.Time, time.Time, error) {
	end := dateOf(now)
	if s := strings.TrimSpace(c.EndDate); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("BACKTEST_END_DATE: %w", err)
		}
		end = t
	}
	start := end.AddDate(-1, 0, 0)
	if s := strings.TrimSpace(c.StartDate); s != "" {
		t, err := time.Parse(dateLayout, s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("BACKTEST_START_DATE: %w", err)
		}
		start = t
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
