package signals

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"insiderbot/src/config"
	"insiderbot/src/model"
)

const defaultPriceConcurrency = 4

// PriceSource resolves the latest price for a ticker. A nil price with a nil
// error means no price is available.
type PriceSource interface {
	CurrentPrice(ctx context.Context, ticker string) (*decimal.Decimal, error)
}

type Result struct {
	Signals    []*model.TradingSignal
	Rejections []*Rejection
}

type Generator struct {
	cfg         config.Trading
	builder     *Builder
	prices      PriceSource
	concurrency int
	log         *logrus.Entry
}

func NewGenerator(cfg config.Trading, prices PriceSource, log *logrus.Entry) *Generator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Generator{
		cfg:         cfg,
		builder:     NewBuilder(cfg),
		prices:      prices,
		concurrency: defaultPriceConcurrency,
		log:         log.WithField("component", "signals"),
	}
}

// WithConcurrency bounds the number of parallel price lookups; 1 makes them sequential.
func (g *Generator) WithConcurrency(n int) *Generator {
	if n < 1 {
		n = 1
	}
	g.concurrency = n
	return g
}

func (g *Generator) WithBuilder(b *Builder) *Generator {
	g.builder = b
	return g
}

// Generate scores every ticker with filings inside the lookback window ending
// at now. A failing ticker is reported as a rejection and never stops the batch.
// Signals come back ordered by ticker.
func (g *Generator) Generate(ctx context.Context, events []model.InsiderTransaction, now time.Time) Result {
	tickers, groups := GroupByTicker(InWindow(events, now, g.cfg.LookbackDays))

	var (
		mu  sync.Mutex
		res Result
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for _, ticker := range tickers {
		group := groups[ticker]
		eg.Go(func() error {
			sig, rej := g.analyze(egCtx, ticker, group, now)

			mu.Lock()
			defer mu.Unlock()
			if rej != nil {
				res.Rejections = append(res.Rejections, rej)
				return nil
			}
			res.Signals = append(res.Signals, sig)
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(res.Signals, func(i, j int) bool { return res.Signals[i].Ticker < res.Signals[j].Ticker })
	sort.SliceStable(res.Rejections, func(i, j int) bool { return res.Rejections[i].Ticker < res.Rejections[j].Ticker })

	g.log.WithFields(logrus.Fields{
		"tickers":    len(tickers),
		"signals":    len(res.Signals),
		"rejections": len(res.Rejections),
	}).Info("signal generation finished")

	return res
}

func (g *Generator) analyze(ctx context.Context, ticker string, group []model.InsiderTransaction, now time.Time) (*model.TradingSignal, *Rejection) {
	log := g.log.WithField("ticker", ticker)

	price, err := g.prices.CurrentPrice(ctx, ticker)
	if err != nil {
		log.WithError(err).Warn("could not get price")
		return nil, &Rejection{Ticker: ticker, Reason: ReasonPriceUnavailable, Err: err}
	}

	sig, rej := g.builder.Build(ticker, group, price, now)
	if rej != nil {
		log.WithFields(logrus.Fields{"reason": rej.Reason, "score": rej.Score}).Debug("no signal")
		return nil, rej
	}

	log.WithFields(logrus.Fields{
		"strength": sig.Strength,
		"score":    sig.ConvictionScore,
		"entry":    sig.EntryPrice.StringFixed(2),
		"shares":   sig.TargetPositionSize,
	}).Info("signal generated")
	return sig, nil
}

// InWindow keeps events filed in [now-lookbackDays, now].
func InWindow(events []model.InsiderTransaction, now time.Time, lookbackDays int) []model.InsiderTransaction {
	cutoff := now.AddDate(0, 0, -lookbackDays)
	out := make([]model.InsiderTransaction, 0, len(events))
	for _, ev := range events {
		if ev.FilingDate.Before(cutoff) || ev.FilingDate.After(now) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// GroupByTicker buckets events by upper-cased ticker, keeping first-seen ticker
// order and the input order within each bucket.
func GroupByTicker(events []model.InsiderTransaction) ([]string, map[string][]model.InsiderTransaction) {
	var order []string
	groups := make(map[string][]model.InsiderTransaction)
	for _, ev := range events {
		key := strings.ToUpper(strings.TrimSpace(ev.Ticker))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}
	return order, groups
}
