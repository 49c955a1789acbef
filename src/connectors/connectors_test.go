package connectors

// Test index:
//  1. TestIsRetryableResp verifies retry decisions for various response codes and errors.
//  2. TestYahooPriceHistory decodes chart bars, skips null sessions and filters to the range.
//  3. TestYahooCurrentPrice prefers the regular market price.
//  4. TestYahooCurrentPriceFallsBackToLastClose uses the last close without a market price.
//  5. TestYahooUnknownTicker returns no price and no error.
//  6. TestYahooRetriesServerErrors retries a 5xx and then succeeds.
//  7. TestYahooPersistentServerError surfaces an error once retries run out.
//  8. TestPaperConnectorFillsAtHint fills at the hint without a quote source.
//  9. TestPaperConnectorQuoteRules fills at the quote and rejects a buy above the limit.
// 10. TestPaperConnectorValidation rejects malformed orders.
// 11. TestNewExecutionConnector selects the connector by mode.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type assertError struct{}

func (assertError) Error() string { return "err" }

func fakeResponse(status int) *resty.Response {
	return &resty.Response{RawResponse: &http.Response{StatusCode: status}}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *YahooPriceSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, _ := logrustest.NewNullLogger()
	y := NewYahooPriceSource(Config{YahooBaseURL: srv.URL, YahooUserAgent: "insiderbot-test", YahooTimeout: 2 * time.Second}, logrus.NewEntry(logger))
	y.http.SetRetryWaitTime(time.Millisecond).SetRetryMaxWaitTime(5 * time.Millisecond)
	return y
}

// three sessions at 09:30 New York; the middle one is null
const chartBody = `{"chart":{"result":[{"meta":{"symbol":"ACME"},
"timestamp":[1745242200,1745328600,1745415000],
"indicators":{"quote":[{
"open":[50.1,null,51.0],
"high":[51.5,null,52.25],
"low":[49.75,null,50.5],
"close":[51.2,null,52.0],
"volume":[120000,null,98000]}]}}],"error":null}}`

func TestIsRetryableResp(t *testing.T) {
	cases := []struct {
		name string
		resp *resty.Response
		err  error
		want bool
	}{
		{name: "error present", err: assertError{}, want: true},
		{name: "server error", resp: fakeResponse(500), want: true},
		{name: "bad gateway", resp: fakeResponse(502), want: true},
		{name: "too many requests", resp: fakeResponse(429), want: true},
		{name: "timeout", resp: fakeResponse(408), want: true},
		{name: "not found", resp: fakeResponse(404), want: false},
		{name: "ok response", resp: fakeResponse(200), want: false},
		{name: "nil resp", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := isRetryableResp(tc.resp, tc.err)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestYahooPriceHistory(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/ACME", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		assert.NotEmpty(t, r.URL.Query().Get("period2"))
		assert.Equal(t, "insiderbot-test", r.Header.Get("User-Agent"))
		_, _ = fmt.Fprint(w, chartBody)
	})

	start := time.Date(2025, time.April, 21, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.April, 23, 0, 0, 0, 0, time.UTC)
	bars, err := y.PriceHistory(context.Background(), "acme", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 2)

	assert.Equal(t, "ACME", bars[0].Ticker)
	assert.Equal(t, start, bars[0].Date)
	assert.True(t, bars[0].Open.Equal(d("50.1")))
	assert.True(t, bars[0].High.Equal(d("51.5")))
	assert.True(t, bars[0].Low.Equal(d("49.75")))
	assert.True(t, bars[0].Close.Equal(d("51.2")))
	assert.True(t, bars[0].Volume.Equal(d("120000")))

	assert.Equal(t, end, bars[1].Date)
	assert.True(t, bars[1].Close.Equal(d("52")))

	narrow, err := y.PriceHistory(context.Background(), "ACME", start, start)
	require.NoError(t, err)
	require.Len(t, narrow, 1)
	assert.Equal(t, start, narrow[0].Date)
}

func TestYahooCurrentPrice(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		_, _ = fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"ACME","regularMarketPrice":53.125},
"timestamp":[1745242200],"indicators":{"quote":[{"open":[50],"high":[51],"low":[49],"close":[50.5],"volume":[1]}]}}],"error":null}}`)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(d("53.125")), "got %s", price)
}

func TestYahooCurrentPriceFallsBackToLastClose(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, chartBody)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.True(t, price.Equal(d("52")), "got %s", price)
}

func TestYahooUnknownTicker(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`)
	})

	price, err := y.CurrentPrice(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, price)

	bars, err := y.PriceHistory(context.Background(), "NOPE", time.Now().AddDate(0, 0, -5), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestYahooErrorPayloadIsReported(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input - interval=1d is not supported"}}}`)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval=1d is not supported")
	assert.Nil(t, price)
}

func TestYahooMalformedBody(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>rate limited</html>`)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.Error(t, err)
	assert.Nil(t, price)
}

func TestYahooRetriesServerErrors(t *testing.T) {
	var calls int32
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = fmt.Fprint(w, chartBody)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.NoError(t, err)
	require.NotNil(t, price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestYahooPersistentServerError(t *testing.T) {
	y := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	price, err := y.CurrentPrice(context.Background(), "ACME")
	require.Error(t, err)
	assert.Nil(t, price)
}

type stubQuotes struct {
	prices map[string]decimal.Decimal
	err    error
}

func (s stubQuotes) CurrentPrice(_ context.Context, ticker string) (*decimal.Decimal, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.prices[ticker]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func newTestPaper(quotes QuoteSource) *PaperConnector {
	logger, _ := logrustest.NewNullLogger()
	p := NewPaperConnector(quotes, logrus.NewEntry(logger))
	p.now = func() time.Time { return time.Date(2025, time.April, 21, 15, 0, 0, 0, time.UTC) }
	return p
}

func TestPaperConnectorFillsAtHint(t *testing.T) {
	p := newTestPaper(nil)

	fill, err := p.PlaceOrder(context.Background(), OrderRequest{Ticker: "acme", Shares: 58, Side: SideBuy, PriceHint: d("50.50")})
	require.NoError(t, err)
	assert.Equal(t, "ACME", fill.Ticker)
	assert.Equal(t, int64(58), fill.Shares)
	assert.True(t, fill.Price.Equal(d("50.50")))
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, time.Date(2025, time.April, 21, 15, 0, 0, 0, time.UTC), fill.FilledAt)

	_, err = p.PlaceOrder(context.Background(), OrderRequest{Ticker: "ACME", Shares: 58, Side: SideSell, PriceHint: d("52")})
	require.NoError(t, err)

	fills := p.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, SideBuy, fills[0].Side)
	assert.Equal(t, SideSell, fills[1].Side)
}

func TestPaperConnectorQuoteRules(t *testing.T) {
	p := newTestPaper(stubQuotes{prices: map[string]decimal.Decimal{"ACME": d("50.20"), "HIGH": d("60")}})

	fill, err := p.PlaceOrder(context.Background(), OrderRequest{Ticker: "ACME", Shares: 10, Side: SideBuy, PriceHint: d("50.50")})
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(d("50.20")))

	_, err = p.PlaceOrder(context.Background(), OrderRequest{Ticker: "HIGH", Shares: 10, Side: SideBuy, PriceHint: d("50.50")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOrderRejected))

	// sells take the quote regardless of the hint
	fill, err = p.PlaceOrder(context.Background(), OrderRequest{Ticker: "HIGH", Shares: 10, Side: SideSell, PriceHint: d("50.50")})
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(d("60")))

	// no quote falls back to the hint
	fill, err = p.PlaceOrder(context.Background(), OrderRequest{Ticker: "OTHER", Shares: 10, Side: SideBuy, PriceHint: d("12")})
	require.NoError(t, err)
	assert.True(t, fill.Price.Equal(d("12")))

	failing := newTestPaper(stubQuotes{err: errors.New("feed down")})
	_, err = failing.PlaceOrder(context.Background(), OrderRequest{Ticker: "ACME", Shares: 10, Side: SideBuy, PriceHint: d("50")})
	assert.True(t, errors.Is(err, ErrOrderRejected))
	assert.Empty(t, failing.Fills())
}

func TestPaperConnectorValidation(t *testing.T) {
	p := newTestPaper(nil)
	cases := []OrderRequest{
		{Shares: 10, Side: SideBuy, PriceHint: d("1")},
		{Ticker: "ACME", Shares: 0, Side: SideBuy, PriceHint: d("1")},
		{Ticker: "ACME", Shares: 10, Side: "HOLD", PriceHint: d("1")},
		{Ticker: "ACME", Shares: 10, Side: SideBuy},
	}
	for _, req := range cases {
		_, err := p.PlaceOrder(context.Background(), req)
		assert.True(t, errors.Is(err, ErrInvalidOrder), "request %+v", req)
	}
	assert.Empty(t, p.Fills())
}

func TestNewExecutionConnector(t *testing.T) {
	conn, err := NewExecutionConnector(Config{ExecutionMode: "paper"}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &PaperConnector{}, conn)

	_, err = NewExecutionConnector(Config{ExecutionMode: "ibkr"}, nil, nil)
	assert.Error(t, err)
}
