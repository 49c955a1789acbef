package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"insiderbot/src/database"
	"insiderbot/src/model"
	"insiderbot/src/repository"
)

type activeSignalFinder interface {
	FindActive(ctx context.Context) ([]model.TradingSignal, error)
}

// ActiveSignalsHandler lists ACTIVE signals, strongest first.
func ActiveSignalsHandler(repo activeSignalFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signals, err := repo.FindActive(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to list active signals")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if signals == nil {
			signals = []model.TradingSignal{}
		}
		writeJSON(w, signals)
	}
}

// DefaultActiveSignalsHandler wires the handler to the read-only database.
func DefaultActiveSignalsHandler() http.HandlerFunc {
	return ActiveSignalsHandler(repository.NewSignalRepository().WithDB(database.ReadOnlyDB))
}
