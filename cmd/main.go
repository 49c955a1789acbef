package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"insiderbot/cmd/backtester"
	"insiderbot/cmd/importer"
	"insiderbot/cmd/ohlcv"
	"insiderbot/cmd/signalgen"
	"insiderbot/cmd/trader"
	"insiderbot/src/backtest"
	"insiderbot/src/config"
	"insiderbot/src/connectors"
	"insiderbot/src/database"
	"insiderbot/src/repository"
)

var Version string

func main() {
	// config/.env first so a local .env can only add missing keys
	_ = godotenv.Load("config/.env")
	_ = godotenv.Load(".env")
	setupLogger()

	app := cli.NewApp()
	app.Name = "insiderbot"
	app.Usage = "Insider purchase strategy: backtest, trade and maintain data"
	app.Version = Version

	app.Commands = []cli.Command{
		backtestCMD,
		traderCMD,
		signalsCMD,
		ohlcvCMD,
		importCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	backtestCMD = cli.Command{
		Name:        "backtest",
		Usage:       "replay recorded filings against daily bars",
		Action:      backtestAction,
		Description: `Run a backtest over BACKTEST_START_DATE..BACKTEST_END_DATE`,
	}
	traderCMD = cli.Command{
		Name:        "trader",
		Usage:       "run the scheduled trading loop",
		Action:      traderAction,
		Description: `Run the live cycle on TRADER_SCHEDULE until interrupted`,
	}
	signalsCMD = cli.Command{
		Name:        "signals",
		Usage:       "generate signals once and print them",
		Action:      signalsAction,
		Description: `Score filings from the last LOOKBACK_DAYS days`,
	}
	ohlcvCMD = cli.Command{
		Name:        "ohlcv",
		Usage:       "download daily bars into the database",
		Action:      ohlcvAction,
		Description: `Download OHLCV_DAYS of daily bars for OHLCV_TICKERS or every filed ticker`,
	}
	importCMD = cli.Command{
		Name:      "import",
		Usage:     "load a scraper CSV export of insider purchases",
		Action:    importAction,
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "file, f", Usage: "CSV file to import (overrides IMPORT_FILE)"},
		},
		Description: `Import insider transactions, skipping rows already stored`,
	}
)

func setupLogger() {
	level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// tradingConfig loads and validates the engine parameters and opens the main database.
func tradingConfig() (config.Trading, error) {
	cfg := config.GetConfig()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if err := database.InitMainDB(cfg.CommissionRate); err != nil {
		return cfg, fmt.Errorf("connect to database: %w", err)
	}
	return cfg, nil
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func backtestAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "backtest")
	log.Info("Starting backtest CMD")

	cfg, err := tradingConfig()
	if err != nil {
		return err
	}
	runCfg := backtester.GetConfig()

	var bars backtest.BarSource = repository.NewOHLCVRepository()
	if runCfg.BarSource == "yahoo" {
		bars = connectors.NewYahooPriceSource(connectors.GetConfig(), log)
	}

	ctx, stop := interruptContext()
	defer stop()

	runner := &backtester.Backtester{
		Log:        log,
		Config:     runCfg,
		Backtest:   backtest.GetConfig(),
		Trading:    cfg,
		Events:     repository.NewTransactionRepository(),
		Bars:       bars,
		Trades:     repository.NewTradeRepository(),
		Rejections: repository.NewRejectionRepository(),
		Out:        os.Stdout,
	}
	if _, err := runner.Start(ctx, time.Now().UTC()); err != nil {
		log.WithError(err).Error("backtest failed")
		return err
	}
	return nil
}

func traderAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "trader")
	log.Info("Starting trader CMD")

	cfg, err := tradingConfig()
	if err != nil {
		return err
	}
	t := &trader.Trader{Log: log, Config: trader.GetConfig(), Trading: cfg}
	if err := t.Start(); err != nil {
		log.WithError(err).Error("trader stopped with error")
		return err
	}
	return nil
}

func signalsAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "signals")
	log.Info("Starting signals CMD")

	cfg, err := tradingConfig()
	if err != nil {
		return err
	}
	genCfg := signalgen.GetConfig()
	prices, err := trader.NewPriceSource(genCfg.PriceSource, connectors.GetConfig(), log)
	if err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	gen := &signalgen.SignalGen{
		Log:          log,
		Config:       genCfg,
		Trading:      cfg,
		Transactions: repository.NewTransactionRepository(),
		Prices:       prices,
		Signals:      repository.NewSignalRepository(),
		Rejections:   repository.NewRejectionRepository(),
		Out:          os.Stdout,
	}
	if _, err := gen.Start(ctx, time.Now().UTC()); err != nil {
		log.WithError(err).Error("signal generation failed")
		return err
	}
	return nil
}

func ohlcvAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "ohlcv")
	log.Info("Starting OHLCV CMD")

	if _, err := tradingConfig(); err != nil {
		return err
	}

	ctx, stop := interruptContext()
	defer stop()

	syncer := &ohlcv.OHLCV{
		Log:     log,
		Config:  ohlcv.GetConfig(),
		Fetcher: connectors.NewYahooPriceSource(connectors.GetConfig(), log),
		Store:   repository.NewOHLCVRepository(),
		Filings: repository.NewTransactionRepository(),
	}
	if _, err := syncer.Start(ctx, time.Now().UTC()); err != nil {
		log.WithError(err).Error("bar sync failed")
		return err
	}
	return nil
}

func importAction(c *cli.Context) error {
	log := logrus.WithField("cmd", "import")
	log.Info("Starting import CMD")

	cfg := importer.GetConfig()
	switch {
	case c.String("file") != "":
		cfg.File = c.String("file")
	case c.NArg() > 0:
		cfg.File = c.Args().First()
	}

	if _, err := tradingConfig(); err != nil {
		return err
	}

	imp := &importer.Importer{
		Log:    log,
		Config: cfg,
		Sink:   repository.NewTransactionRepository(),
	}
	if _, err := imp.Start(context.Background()); err != nil {
		log.WithError(err).Error("import failed")
		return err
	}
	return nil
}
