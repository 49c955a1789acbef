package signals

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"insiderbot/src/config"
	"insiderbot/src/conviction"
	"insiderbot/src/model"
	"insiderbot/src/risk"
)

const maxNamedInsiders = 3

// Builder turns one ticker's scored purchase group into a signal. It holds no
// state besides its configuration and is safe for concurrent use.
type Builder struct {
	cfg   config.Trading
	newID func() string
}

func NewBuilder(cfg config.Trading) *Builder {
	return &Builder{cfg: cfg, newID: uuid.NewString}
}

// WithIDFunc replaces the signal id generator.
func (b *Builder) WithIDFunc(fn func() string) *Builder {
	return &Builder{cfg: b.cfg, newID: fn}
}

// Build returns either a signal or the reason there is none. A nil price means
// the price could not be resolved.
func (b *Builder) Build(ticker string, events []model.InsiderTransaction, price *decimal.Decimal, now time.Time) (*model.TradingSignal, *Rejection) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	if len(events) == 0 {
		return nil, &Rejection{Ticker: ticker, Reason: ReasonEmptyGroup, Err: conviction.ErrEmptyGroup}
	}
	if err := validateGroup(ticker, events); err != nil {
		return nil, &Rejection{Ticker: ticker, Reason: ReasonInvalidEvent, Err: err}
	}

	if price == nil || !price.IsPositive() {
		return nil, &Rejection{Ticker: ticker, Reason: ReasonPriceUnavailable}
	}
	if price.LessThan(b.cfg.MinStockPrice) || price.GreaterThan(b.cfg.MaxStockPrice) {
		return nil, &Rejection{
			Ticker: ticker,
			Reason: ReasonPriceOutOfRange,
			Err:    fmt.Errorf("price %s outside [%s, %s]", price.StringFixed(2), b.cfg.MinStockPrice, b.cfg.MaxStockPrice),
		}
	}

	score, err := conviction.Score(events, now, b.cfg.MinTransactionValue)
	if err != nil {
		return nil, &Rejection{Ticker: ticker, Reason: ReasonInvalidEvent, Err: err}
	}
	strength := conviction.StrengthFor(score)
	if strength == model.SignalStrengthNone {
		return nil, &Rejection{Ticker: ticker, Reason: ReasonWeakSignal, Score: score}
	}

	one := decimal.NewFromInt(1)
	return &model.TradingSignal{
		SignalID:           b.newID(),
		Ticker:             ticker,
		TransactionID:      latestFiling(events).ID,
		SignalDate:         now,
		Strength:           strength,
		ConvictionScore:    score,
		EntryPrice:         *price,
		TargetPositionSize: risk.PositionSize(*price, score, b.cfg),
		StopLoss:           price.Mul(one.Sub(b.cfg.StopLossPct)),
		ProfitTarget:       price.Mul(one.Add(b.cfg.ProfitTargetPct)),
		Status:             model.SignalStatusActive,
		Notes:              Rationale(events),
	}, nil
}

// Rationale summarizes the group, e.g.
// "5 insider purchase(s) totaling $1,250,000. Insiders: A, B, C and 2 others".
func Rationale(events []model.InsiderTransaction) string {
	total := conviction.TotalValue(events).Round(0).IntPart()
	names := conviction.InsiderNames(events)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d insider purchase(s) totaling $%s. ", len(events), humanize.Comma(total))

	shown := names
	if len(shown) > maxNamedInsiders {
		shown = shown[:maxNamedInsiders]
	}
	sb.WriteString("Insiders: ")
	sb.WriteString(strings.Join(shown, ", "))
	if extra := len(names) - len(shown); extra > 0 {
		fmt.Fprintf(&sb, " and %d others", extra)
	}
	return sb.String()
}

func validateGroup(ticker string, events []model.InsiderTransaction) error {
	for i := range events {
		ev := &events[i]
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.InsiderName, err)
		}
		if !strings.EqualFold(strings.TrimSpace(ev.Ticker), ticker) {
			return fmt.Errorf("event %d: ticker %q does not belong to group %q", i, ev.Ticker, ticker)
		}
	}
	return nil
}

func latestFiling(events []model.InsiderTransaction) model.InsiderTransaction {
	latest := events[0]
	for _, ev := range events[1:] {
		if ev.FilingDate.After(latest.FilingDate) {
			latest = ev
		}
	}
	return latest
}
