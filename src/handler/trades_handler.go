package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"insiderbot/src/database"
	"insiderbot/src/model"
	"insiderbot/src/repository"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
)

type openTradeFinder interface {
	GetOpenTrades(ctx context.Context) ([]model.Trade, error)
}

type tradeLister interface {
	FindAll(ctx context.Context, limit int) ([]model.Trade, error)
}

// OpenTradesHandler lists OPEN trades, oldest entry first.
func OpenTradesHandler(repo openTradeFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trades, err := repo.GetOpenTrades(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list open trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trades == nil {
			trades = []model.Trade{}
		}
		writeJSON(w, trades)
	}
}

// TradesHandler lists the most recent trades. Supports ?limit= up to 1000.
func TradesHandler(repo tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := queryInt(r, "limit", defaultTradeLimit)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if limit > maxTradeLimit {
			limit = maxTradeLimit
		}

		trades, err := repo.FindAll(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if trades == nil {
			trades = []model.Trade{}
		}
		writeJSON(w, trades)
	}
}

func DefaultOpenTradesHandler() http.HandlerFunc {
	return OpenTradesHandler(repository.NewTradeRepository().WithDB(database.ReadOnlyDB))
}

func DefaultTradesHandler() http.HandlerFunc {
	return TradesHandler(repository.NewTradeRepository().WithDB(database.ReadOnlyDB))
}
