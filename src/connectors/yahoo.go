package connectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"insiderbot/src/model"
	"insiderbot/src/risk"
)

const (
	yahooChartPath   = "/v8/finance/chart/{ticker}"
	yahooPriceDigits = 4
)

// YahooPriceSource reads daily bars and the latest price from the Yahoo
// Finance chart API.
type YahooPriceSource struct {
	http      *resty.Client
	userAgent string
	symbols   map[string]string
	log       *logrus.Entry
}

func NewYahooPriceSource(cfg Config, log *logrus.Entry) *YahooPriceSource {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	baseURL := cfg.YahooBaseURL
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
		log.Warnf("No Yahoo base URL provided, using default: %s", baseURL)
	}
	return &YahooPriceSource{
		http:      newRestyClient(baseURL, cfg.YahooTimeout),
		userAgent: cfg.YahooUserAgent,
		symbols: map[string]string{
			"SPX":   "^GSPC",
			"SP500": "^GSPC",
		},
		log: log.WithField("connector", "yahoo"),
	}
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *YahooPriceSource) yahooSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if mapped, ok := y.symbols[t]; ok {
		return mapped
	}
	return t
}

// fetchChart returns (nil, nil) when Yahoo knows nothing about the ticker.
func (y *YahooPriceSource) fetchChart(ctx context.Context, ticker string, params map[string]string) (*yahooChart, error) {
	req := y.http.R().
		SetContext(ctx).
		SetPathParam("ticker", y.yahooSymbol(ticker)).
		SetQueryParams(params).
		ForceContentType("application/json").
		SetResult(&yahooChart{}).
		SetError(&yahooChart{})
	if y.userAgent != "" {
		req.SetHeader("User-Agent", y.userAgent)
	}

	resp, err := req.Get(yahooChartPath)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch %s: %w", ticker, err)
	}

	if resp.IsError() {
		if failed, ok := resp.Error().(*yahooChart); ok && failed.Chart.Error != nil {
			if failed.Chart.Error.Code == "Not Found" {
				return nil, nil
			}
			return nil, fmt.Errorf("yahoo api error for %s: %s", ticker, failed.Chart.Error.Description)
		}
		return nil, fmt.Errorf("yahoo %s: status %d", ticker, resp.StatusCode())
	}

	chart, ok := resp.Result().(*yahooChart)
	if !ok || chart == nil {
		return nil, fmt.Errorf("yahoo decode %s: unexpected result %T", ticker, resp.Result())
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, nil
		}
		return nil, fmt.Errorf("yahoo api error for %s: %s", ticker, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}
	return chart, nil
}

// PriceHistory returns daily bars whose date falls in the calendar dates of
// [start, end], ascending. Bar dates are New York market dates at UTC midnight.
func (y *YahooPriceSource) PriceHistory(ctx context.Context, ticker string, start, end time.Time) ([]model.OHLCVDaily, error) {
	chart, err := y.fetchChart(ctx, ticker, map[string]string{
		"interval": "1d",
		"period1":  fmt.Sprintf("%d", start.Unix()),
		"period2":  fmt.Sprintf("%d", end.AddDate(0, 0, 1).Unix()),
	})
	if err != nil || chart == nil {
		return nil, err
	}

	bars := toDailyBars(strings.ToUpper(strings.TrimSpace(ticker)), chart)
	out := bars[:0]
	first, last := calendarDate(start), calendarDate(end)
	for _, b := range bars {
		if b.Date.Before(first) || b.Date.After(last) {
			continue
		}
		out = append(out, b)
	}

	y.log.WithFields(logrus.Fields{
		"ticker": ticker,
		"bars":   len(out),
	}).Debug("fetched daily bars")
	return out, nil
}

// CurrentPrice prefers the regular market price and falls back to the most
// recent daily close. Returns (nil, nil) when no price is known.
func (y *YahooPriceSource) CurrentPrice(ctx context.Context, ticker string) (*decimal.Decimal, error) {
	chart, err := y.fetchChart(ctx, ticker, map[string]string{
		"interval": "1d",
		"range":    "5d",
	})
	if err != nil || chart == nil {
		return nil, err
	}

	if p := chart.Chart.Result[0].Meta.RegularMarketPrice; p != nil && *p > 0 {
		price := toDecimal(p, yahooPriceDigits)
		return &price, nil
	}

	bars := toDailyBars(ticker, chart)
	if len(bars) == 0 {
		return nil, nil
	}
	price := bars[len(bars)-1].Close
	return &price, nil
}

func toDailyBars(ticker string, chart *yahooChart) []model.OHLCVDaily {
	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	at := func(series []*float64, i int) *float64 {
		if i < len(series) {
			return series[i]
		}
		return nil
	}

	bars := make([]model.OHLCVDaily, 0, len(result.Timestamp))
	seen := make(map[time.Time]int, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := at(quote.Close, i)
		if c == nil || *c <= 0 {
			// holidays and halted sessions come back as nulls
			continue
		}
		bar := model.OHLCVDaily{
			Ticker: ticker,
			Date:   risk.MarketDate(time.Unix(ts, 0)),
			Open:   orClose(at(quote.Open, i), c),
			High:   orClose(at(quote.High, i), c),
			Low:    orClose(at(quote.Low, i), c),
			Close:  toDecimal(c, yahooPriceDigits),
			Volume: toDecimal(at(quote.Volume, i), 0),
		}
		// the live session can repeat the last date; keep the newest values
		if idx, ok := seen[bar.Date]; ok {
			bars[idx] = bar
			continue
		}
		seen[bar.Date] = len(bars)
		bars = append(bars, bar)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

func toDecimal(v *float64, places int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v).Round(places)
}

func orClose(v, c *float64) decimal.Decimal {
	if v == nil || *v <= 0 {
		return toDecimal(c, yahooPriceDigits)
	}
	return toDecimal(v, yahooPriceDigits)
}

func calendarDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
