package connectors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

var (
	ErrInvalidOrder  = errors.New("invalid order")
	ErrOrderRejected = errors.New("order rejected")
)

// OrderRequest is a market order with a price hint. For a BUY the hint is the
// highest acceptable fill.
type OrderRequest struct {
	Ticker    string
	Shares    int64
	Side      Side
	PriceHint decimal.Decimal
}

func (r OrderRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Ticker) == "":
		return fmt.Errorf("%w: missing ticker", ErrInvalidOrder)
	case r.Shares <= 0:
		return fmt.Errorf("%w: shares must be positive, got %d", ErrInvalidOrder, r.Shares)
	case r.Side != SideBuy && r.Side != SideSell:
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, r.Side)
	case !r.PriceHint.IsPositive():
		return fmt.Errorf("%w: price hint must be positive, got %s", ErrInvalidOrder, r.PriceHint)
	}
	return nil
}

type Fill struct {
	OrderID  string          `json:"order_id"`
	Ticker   string          `json:"ticker"`
	Side     Side            `json:"side"`
	Shares   int64           `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	FilledAt time.Time       `json:"filled_at"`
}

// ExecutionConnector routes orders to a venue and reports the fill.
type ExecutionConnector interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error)
}

// QuoteSource is the price lookup a PaperConnector fills against.
type QuoteSource interface {
	CurrentPrice(ctx context.Context, ticker string) (*decimal.Decimal, error)
}

// PaperConnector simulates fills. With no quote source every order fills at its
// price hint. With one, orders fill at the quote, and a BUY whose quote is above
// the hint is rejected.
type PaperConnector struct {
	mu     sync.Mutex
	quotes QuoteSource
	fills  []Fill
	now    func() time.Time
	newID  func() string
	log    *logrus.Entry
}

func NewPaperConnector(quotes QuoteSource, log *logrus.Entry) *PaperConnector {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PaperConnector{
		quotes: quotes,
		now:    time.Now,
		newID:  func() string { return "paper-" + uuid.NewString() },
		log:    log.WithField("connector", "paper"),
	}
}

// NewExecutionConnector builds the connector named by cfg.ExecutionMode.
func NewExecutionConnector(cfg Config, quotes QuoteSource, log *logrus.Entry) (ExecutionConnector, error) {
	switch strings.ToLower(cfg.ExecutionMode) {
	case "", "paper":
		return NewPaperConnector(quotes, log), nil
	default:
		return nil, fmt.Errorf("unsupported execution mode %q", cfg.ExecutionMode)
	}
}

func (p *PaperConnector) PlaceOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := req.Validate(); err != nil {
		return Fill{}, err
	}
	ticker := strings.ToUpper(strings.TrimSpace(req.Ticker))
	log := p.log.WithFields(logrus.Fields{
		"ticker": ticker,
		"side":   req.Side,
		"shares": req.Shares,
		"hint":   req.PriceHint.StringFixed(2),
	})

	price := req.PriceHint
	if p.quotes != nil {
		quote, err := p.quotes.CurrentPrice(ctx, ticker)
		if err != nil {
			log.WithError(err).Warn("paper order rejected, quote lookup failed")
			return Fill{}, fmt.Errorf("%w: quote for %s: %v", ErrOrderRejected, ticker, err)
		}
		if quote != nil && quote.IsPositive() {
			if req.Side == SideBuy && quote.GreaterThan(req.PriceHint) {
				log.WithField("quote", quote.StringFixed(2)).Warn("paper order rejected, quote above limit")
				return Fill{}, fmt.Errorf("%w: %s quote %s above limit %s", ErrOrderRejected, ticker, quote, req.PriceHint)
			}
			price = *quote
		}
	}

	p.mu.Lock()
	fill := Fill{
		OrderID:  p.newID(),
		Ticker:   ticker,
		Side:     req.Side,
		Shares:   req.Shares,
		Price:    price,
		FilledAt: p.now(),
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	log.WithFields(logrus.Fields{"order_id": fill.OrderID, "price": price.StringFixed(2)}).Info("paper order filled")
	return fill, nil
}

// Fills returns a copy of every fill so far, in order.
func (p *PaperConnector) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Fill, len(p.fills))
	copy(out, p.fills)
	return out
}
