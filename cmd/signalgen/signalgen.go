// Package signalgen runs a single signal generation pass over recent filings
// and prints what it found.
package signalgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"insiderbot/src/config"
	"insiderbot/src/model"
	"insiderbot/src/signals"
)

const serviceName = "signals"

type TransactionSource interface {
	RecentByFilingDate(ctx context.Context, since time.Time) ([]model.InsiderTransaction, error)
}

type SignalSink interface {
	Create(ctx context.Context, signal *model.TradingSignal) error
}

type RejectionSink interface {
	CreateBatch(ctx context.Context, rows []model.Rejection) error
}

type SignalGen struct {
	Log          *logrus.Entry
	Config       *Config
	Trading      config.Trading
	Transactions TransactionSource
	Prices       signals.PriceSource
	// Signals and Rejections are only used when Config.Persist is set.
	Signals    SignalSink
	Rejections RejectionSink
	Out        io.Writer
}

func (s *SignalGen) Start(ctx context.Context, now time.Time) (signals.Result, error) {
	events, err := s.Transactions.RecentByFilingDate(ctx, now.AddDate(0, 0, -s.Trading.LookbackDays))
	if err != nil {
		return signals.Result{}, fmt.Errorf("load transactions: %w", err)
	}

	res := signals.NewGenerator(s.Trading, s.Prices, s.Log).Generate(ctx, events, now)

	if s.Config.Persist {
		if err := s.persist(ctx, res, now); err != nil {
			return res, err
		}
	}
	if s.Out != nil {
		if err := Print(s.Out, res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *SignalGen) persist(ctx context.Context, res signals.Result, now time.Time) error {
	var errs []error
	for _, sig := range res.Signals {
		if err := s.Signals.Create(ctx, sig); err != nil {
			errs = append(errs, fmt.Errorf("persist signal %s: %w", sig.Ticker, err))
		}
	}
	if len(res.Rejections) > 0 {
		rows := make([]model.Rejection, 0, len(res.Rejections))
		for _, rej := range res.Rejections {
			rows = append(rows, rej.Record(serviceName, now))
		}
		if err := s.Rejections.CreateBatch(ctx, rows); err != nil {
			errs = append(errs, fmt.Errorf("persist rejections: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Print writes a signal table followed by the rejection reasons.
func Print(w io.Writer, res signals.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TICKER\tSTRENGTH\tSCORE\tENTRY\tSTOP\tTARGET\tSHARES\n")
	for _, sig := range res.Signals {
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\t%s\t%s\n",
			sig.Ticker,
			sig.Strength,
			sig.ConvictionScore,
			sig.EntryPrice.StringFixed(2),
			sig.StopLoss.StringFixed(2),
			sig.ProfitTarget.StringFixed(2),
			humanize.Comma(sig.TargetPositionSize),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := map[signals.Reason]int{}
	for _, rej := range res.Rejections {
		counts[rej.Reason]++
	}
	_, err := fmt.Fprintf(w, "\n%s signal(s), %s rejection(s)", humanize.Comma(int64(len(res.Signals))), humanize.Comma(int64(len(res.Rejections))))
	if err != nil {
		return err
	}
	for _, reason := range []signals.Reason{
		signals.ReasonEmptyGroup,
		signals.ReasonInvalidEvent,
		signals.ReasonPriceUnavailable,
		signals.ReasonPriceOutOfRange,
		signals.ReasonWeakSignal,
	} {
		if n := counts[reason]; n > 0 {
			if _, err := fmt.Fprintf(w, ", %s=%d", reason, n); err != nil {
				return err
			}
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}
