package server

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string `envconfig:"PORT" default:"9898"`
	BenchmarkTicker string `envconfig:"BENCHMARK_TICKER" default:"SPY"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
