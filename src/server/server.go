package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"insiderbot/src/handler"
)

// Routes are the report endpoints. A nil handler leaves its route unregistered.
type Routes struct {
	ActiveSignals http.HandlerFunc
	OpenTrades    http.HandlerFunc
	Trades        http.HandlerFunc
	Performance   http.HandlerFunc
}

// DefaultRoutes reads from the read-only database.
func DefaultRoutes(cfg *Config) Routes {
	return Routes{
		ActiveSignals: handler.DefaultActiveSignalsHandler(),
		OpenTrades:    handler.DefaultOpenTradesHandler(),
		Trades:        handler.DefaultTradesHandler(),
		Performance:   handler.DefaultPerformanceHandler(cfg.BenchmarkTicker),
	}
}

func NewRouter(routes Routes) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("healthcheck write failed")
		}
	})

	mount := func(pattern string, h http.HandlerFunc) {
		if h != nil {
			r.Get(pattern, h)
		}
	}
	mount("/signals/active", routes.ActiveSignals)
	mount("/trades/open", routes.OpenTrades)
	mount("/trades", routes.Trades)
	mount("/performance", routes.Performance)

	return r
}

func StartServer(port string, routes Routes) {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(routes),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
