// Package trader runs the scheduled live cycle: generate signals, place
// orders through the execution connector, manage exits and snapshot the book.
package trader

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"insiderbot/src/config"
	"insiderbot/src/connectors"
	"insiderbot/src/executors"
	"insiderbot/src/repository"
	"insiderbot/src/signals"
	"insiderbot/src/strategy"
)

type Trader struct {
	Log     *logrus.Entry
	Config  *Config
	Trading config.Trading
}

// Start blocks until SIGINT or SIGTERM. The main database must be initialized.
func (t *Trader) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	exec, err := t.NewExecutor()
	if err != nil {
		return err
	}

	loop := executors.GetConfig()
	t.Log.WithFields(logrus.Fields{
		"schedule":     loop.Schedule,
		"timezone":     loop.Timezone,
		"price_source": t.Config.PriceSource,
	}).Info("starting trader loop")

	return executors.StartLoop(ctx, exec, loop)
}

// NewExecutor wires the repositories, the price source and the execution connector.
func (t *Trader) NewExecutor() (*strategy.Executor, error) {
	connCfg := connectors.GetConfig()

	prices, err := NewPriceSource(t.Config.PriceSource, connCfg, t.Log)
	if err != nil {
		return nil, err
	}
	conn, err := connectors.NewExecutionConnector(connCfg, prices, t.Log)
	if err != nil {
		return nil, err
	}

	stores := strategy.Stores{
		Transactions: repository.NewTransactionRepository(),
		Signals:      repository.NewSignalRepository(),
		Trades:       repository.NewTradeRepository(),
		Rejections:   repository.NewRejectionRepository(),
		Snapshots:    repository.NewPortfolioRepository(),
	}
	return strategy.NewExecutor(t.Log, t.Trading, stores, prices, conn).WithBenchmark(t.Config.BenchmarkTicker), nil
}

// NewPriceSource returns the Yahoo client or the stored-bar repository.
func NewPriceSource(name string, cfg connectors.Config, log *logrus.Entry) (signals.PriceSource, error) {
	switch name {
	case "", "yahoo":
		return connectors.NewYahooPriceSource(cfg, log), nil
	case "db":
		return repository.NewOHLCVRepository(), nil
	default:
		return nil, fmt.Errorf("unknown price source %q", name)
	}
}
