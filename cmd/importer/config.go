package importer

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// File is the scraper CSV export. The --file flag overrides it.
	File string `envconfig:"IMPORT_FILE"`
	// SkipInvalid logs and skips malformed rows instead of aborting the import.
	SkipInvalid bool `envconfig:"IMPORT_SKIP_INVALID" default:"true"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}
