package trader

import (
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/connectors"
	"insiderbot/src/repository"
)

func TestNewPriceSource(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	log := logrus.NewEntry(logger)
	cfg := connectors.Config{YahooBaseURL: "http://localhost", YahooUserAgent: "test"}

	src, err := NewPriceSource("yahoo", cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &connectors.YahooPriceSource{}, src)

	src, err = NewPriceSource("db", cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &repository.OHLCVRepository{}, src)

	_, err = NewPriceSource("bloomberg", cfg, log)
	assert.Error(t, err)
}
