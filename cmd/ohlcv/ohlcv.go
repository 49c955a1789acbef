// Package ohlcv downloads daily bars and stores them so backtests and the
// database price source can run offline.
package ohlcv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"insiderbot/src/model"
)

type BarFetcher interface {
	PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCVDaily, error)
}

type BarStore interface {
	UpsertBars(ctx context.Context, bars []model.OHLCVDaily) error
}

type TickerSource interface {
	Between(ctx context.Context, start, end time.Time) ([]model.InsiderTransaction, error)
}

type OHLCV struct {
	Log     *logrus.Entry
	Config  *Config
	Fetcher BarFetcher
	Store   BarStore
	Filings TickerSource
}

type Stats struct {
	Tickers int
	Bars    int
	Failed  []string
}

// Start syncs [now-Days, now] for the configured tickers plus the benchmark.
func (o *OHLCV) Start(ctx context.Context, now time.Time) (Stats, error) {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -o.Config.Days)

	tickers, err := o.tickers(ctx, start, end)
	if err != nil {
		return Stats{}, err
	}
	return o.Sync(ctx, tickers, start, end)
}

func (o *OHLCV) tickers(ctx context.Context, start, end time.Time) ([]string, error) {
	set := map[string]struct{}{}
	add := func(t string) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}

	if len(o.Config.Tickers) > 0 {
		for _, t := range o.Config.Tickers {
			add(t)
		}
	} else if o.Filings != nil {
		events, err := o.Filings.Between(ctx, start, end.AddDate(0, 0, 1))
		if err != nil {
			return nil, fmt.Errorf("load filed tickers: %w", err)
		}
		for _, ev := range events {
			add(ev.Ticker)
		}
	}
	add(o.Config.BenchmarkTicker)

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Sync downloads and stores bars per ticker. A failing ticker is logged and
// listed in Stats.Failed; the others still complete.
func (o *OHLCV) Sync(ctx context.Context, tickers []string, start, end time.Time) (Stats, error) {
	var (
		mu    sync.Mutex
		stats = Stats{Tickers: len(tickers)}
	)

	limit := o.Config.Concurrency
	if limit < 1 {
		limit = 1
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for _, ticker := range tickers {
		eg.Go(func() error {
			n, err := o.syncTicker(egCtx, ticker, start, end)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.Log.WithError(err).WithField("ticker", ticker).Warn("bar download failed")
				stats.Failed = append(stats.Failed, ticker)
				return nil
			}
			stats.Bars += n
			return nil
		})
	}
	_ = eg.Wait()
	sort.Strings(stats.Failed)

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	o.Log.WithFields(logrus.Fields{
		"tickers": stats.Tickers,
		"bars":    stats.Bars,
		"failed":  len(stats.Failed),
		"start":   start.Format("2006-01-02"),
		"end":     end.Format("2006-01-02"),
	}).Info("bar sync finished")

	if len(stats.Failed) == len(tickers) && len(tickers) > 0 {
		return stats, errors.New("no ticker could be synced")
	}
	return stats, nil
}

func (o *OHLCV) syncTicker(ctx context.Context, ticker string, start, end time.Time) (int, error) {
	bars, err := o.Fetcher.PriceHistory(ctx, ticker, start, end)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		o.Log.WithField("ticker", ticker).Debug("no bars returned")
		return 0, nil
	}
	if err := o.Store.UpsertBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("store bars: %w", err)
	}
	return len(bars), nil
}
