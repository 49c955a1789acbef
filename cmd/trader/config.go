package trader

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BenchmarkTicker string `envconfig:"BENCHMARK_TICKER" default:"SPY"`
	// PriceSource is "yahoo" for live quotes or "db" for the stored daily bars.
	PriceSource string `envconfig:"TRADER_PRICE_SOURCE" default:"yahoo"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
