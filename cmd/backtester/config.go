package backtester

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// BarSource is "db" for stored daily bars or "yahoo" to download them.
	BarSource string `envconfig:"BACKTEST_BAR_SOURCE" default:"db"`
	// Output, when set, receives the full result as JSON.
	Output string `envconfig:"BACKTEST_OUTPUT"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
