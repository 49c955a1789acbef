package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"insiderbot/src/config"
	"insiderbot/src/database"
	"insiderbot/src/model"
	"insiderbot/src/performance"
	"insiderbot/src/repository"
)

type closedTradeFinder interface {
	FindClosed(ctx context.Context) ([]model.Trade, error)
}

type snapshotReader interface {
	Latest(ctx context.Context) (*model.PortfolioSnapshot, error)
	History(ctx context.Context, since time.Time) ([]model.PortfolioSnapshot, error)
}

type PerformanceResponse struct {
	Summary  performance.Summary      `json:"summary"`
	Snapshot *model.PortfolioSnapshot `json:"snapshot,omitempty"`
}

// PerformanceHandler summarizes the closed-trade ledger. Final value comes
// from the latest snapshot when one exists, else initial capital plus net P&L.
func PerformanceHandler(trades closedTradeFinder, snapshots snapshotReader, initialCapital decimal.Decimal, benchmarkTicker string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		closed, err := trades.FindClosed(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to load closed trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		latest, err := snapshots.Latest(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to load latest snapshot")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		history, err := snapshots.History(ctx, time.Time{})
		if err != nil {
			logger.WithError(err).Error("failed to load snapshot history")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		final := initialCapital
		if latest != nil {
			final = latest.TotalValue
		} else {
			for _, t := range closed {
				final = final.Add(t.NetPnL)
			}
		}

		writeJSON(w, PerformanceResponse{
			Summary:  performance.Summarize(closed, benchmarkFrom(benchmarkTicker, history), initialCapital, final),
			Snapshot: latest,
		})
	}
}

// benchmarkFrom takes the first and last recorded benchmark prices.
func benchmarkFrom(ticker string, history []model.PortfolioSnapshot) performance.Benchmark {
	bench := performance.Benchmark{Ticker: ticker}
	for _, snap := range history {
		if !snap.BenchmarkPrice.IsPositive() {
			continue
		}
		if bench.Start.IsZero() {
			bench.Start = snap.BenchmarkPrice
		}
		bench.End = snap.BenchmarkPrice
	}
	return bench
}

func DefaultPerformanceHandler(benchmarkTicker string) http.HandlerFunc {
	cfg := config.GetConfig()
	return PerformanceHandler(
		repository.NewTradeRepository().WithDB(database.ReadOnlyDB),
		repository.NewPortfolioRepository().WithDB(database.ReadOnlyDB),
		cfg.InitialCapital,
		benchmarkTicker,
	)
}
