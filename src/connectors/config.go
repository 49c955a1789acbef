package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	YahooBaseURL   string        `envconfig:"YAHOO_BASE_URL" default:"https://query1.finance.yahoo.com"`
	YahooUserAgent string        `envconfig:"YAHOO_USER_AGENT" default:"Mozilla/5.0"`
	YahooTimeout   time.Duration `envconfig:"YAHOO_TIMEOUT" default:"15s"`

	// ExecutionMode selects the order connector. Only "paper" is supported.
	ExecutionMode string `envconfig:"EXECUTION_MODE" default:"paper"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
