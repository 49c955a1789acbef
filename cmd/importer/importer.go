// Package importer loads the insider-purchase feed exported by the scraper as
// CSV into the transactions table. Rows are deduplicated by data hash.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"insiderbot/src/model"
)

var ErrMissingColumn = errors.New("missing required column")

var requiredColumns = []string{"ticker", "insider_name", "filing_date"}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
}

type TransactionSink interface {
	AddBatch(ctx context.Context, txs []model.InsiderTransaction) (int, error)
}

type Importer struct {
	Log    *logrus.Entry
	Config *Config
	Sink   TransactionSink
}

type Stats struct {
	Rows     int
	Parsed   int
	Inserted int
	Invalid  int
}

func (i *Importer) Start(ctx context.Context) (Stats, error) {
	if i.Config.File == "" {
		return Stats{}, errors.New("no import file given")
	}
	f, err := os.Open(i.Config.File)
	if err != nil {
		return Stats{}, fmt.Errorf("open %s: %w", i.Config.File, err)
	}
	defer f.Close()

	return i.Import(ctx, f)
}

// Import parses r and stores every valid row.
func (i *Importer) Import(ctx context.Context, r io.Reader) (Stats, error) {
	txs, stats, err := i.parse(r)
	if err != nil {
		return stats, err
	}
	if len(txs) == 0 {
		i.Log.Warn("no transactions to import")
		return stats, nil
	}

	inserted, err := i.Sink.AddBatch(ctx, txs)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("store transactions: %w", err)
	}

	i.Log.WithFields(logrus.Fields{
		"rows":     stats.Rows,
		"parsed":   stats.Parsed,
		"inserted": stats.Inserted,
		"invalid":  stats.Invalid,
	}).Info("import finished")
	return stats, nil
}

func (i *Importer) parse(r io.Reader) ([]model.InsiderTransaction, Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for idx, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, stats, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var out []model.InsiderTransaction
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Rows++

		tx, err := parseRow(row{cols: cols, record: record})
		if err == nil {
			err = tx.Validate()
		}
		if err != nil {
			if !i.Config.SkipInvalid {
				return nil, stats, fmt.Errorf("line %d: %w", line, err)
			}
			stats.Invalid++
			i.Log.WithError(err).WithField("line", line).Warn("skipping invalid row")
			continue
		}
		stats.Parsed++
		out = append(out, tx)
	}
	return out, stats, nil
}

type row struct {
	cols   map[string]int
	record []string
}

func (r row) get(name string) string {
	idx, ok := r.cols[name]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

func parseRow(r row) (model.InsiderTransaction, error) {
	tx := model.InsiderTransaction{
		Ticker:          strings.ToUpper(r.get("ticker")),
		CompanyName:     r.get("company_name"),
		InsiderName:     r.get("insider_name"),
		InsiderTitle:    r.get("insider_title"),
		TransactionType: r.get("transaction_type"),
		SECFormURL:      r.get("sec_form_url"),
		DataHash:        r.get("data_hash"),
	}

	var err error
	if tx.FilingDate, err = parseDate(r.get("filing_date")); err != nil {
		return tx, fmt.Errorf("filing_date: %w", err)
	}
	if s := r.get("transaction_date"); s != "" {
		if tx.TransactionDate, err = parseDate(s); err != nil {
			return tx, fmt.Errorf("transaction_date: %w", err)
		}
	} else {
		tx.TransactionDate = tx.FilingDate
	}

	if tx.Shares, err = parseAmount(r.get("shares")); err != nil {
		return tx, fmt.Errorf("shares: %w", err)
	}
	if tx.PricePerShare, err = parseAmount(r.get("price_per_share")); err != nil {
		return tx, fmt.Errorf("price_per_share: %w", err)
	}
	if tx.TotalValue, err = parseAmount(r.get("total_value")); err != nil {
		return tx, fmt.Errorf("total_value: %w", err)
	}
	if tx.TotalValue.IsZero() {
		tx.TotalValue = tx.Shares.Mul(tx.PricePerShare)
	}
	if tx.SharesOwned, err = parseAmount(r.get("shares_owned_after")); err != nil {
		return tx, fmt.Errorf("shares_owned_after: %w", err)
	}

	if s := r.get("is_10b5_1_plan"); s != "" {
		if tx.Is10b51Plan, err = strconv.ParseBool(s); err != nil {
			return tx, fmt.Errorf("is_10b5_1_plan: %w", err)
		}
	}
	if s := r.get("scraped_at"); s != "" {
		if tx.ScrapedAt, err = parseDate(s); err != nil {
			return tx, fmt.Errorf("scraped_at: %w", err)
		}
	}
	return tx, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseAmount accepts "$1,234.50" style values. Empty and NaN parse as zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.NewReplacer("$", "", ",", "", "+", "").Replace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
