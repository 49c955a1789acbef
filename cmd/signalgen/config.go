package signalgen

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// PriceSource is "yahoo" for live quotes or "db" for the stored daily bars.
	PriceSource string `envconfig:"SIGNALS_PRICE_SOURCE" default:"yahoo"`
	Persist     bool   `envconfig:"SIGNALS_PERSIST" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
