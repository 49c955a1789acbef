package ohlcv

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Tickers to download. Empty means every ticker with filings in the window.
	Tickers         []string `envconfig:"OHLCV_TICKERS"`
	Days            int      `envconfig:"OHLCV_DAYS" default:"400"`
	BenchmarkTicker string   `envconfig:"BENCHMARK_TICKER" default:"SPY"`
	Concurrency     int      `envconfig:"OHLCV_CONCURRENCY" default:"4"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
