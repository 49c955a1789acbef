package executors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Schedule is a six-field cron spec with seconds. The default runs every
	// 15 minutes during the New York session, Monday to Friday.
	Schedule   string `envconfig:"TRADER_SCHEDULE" default:"0 */15 9-16 * * 1-5"`
	Timezone   string `envconfig:"TRADER_TIMEZONE" default:"America/New_York"`
	RunOnStart bool   `envconfig:"TRADER_RUN_ON_START" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
