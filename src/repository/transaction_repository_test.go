package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/model"
)

func purchase(ticker, insider string, filed time.Time, value string) model.InsiderTransaction {
	return model.InsiderTransaction{
		Ticker:          ticker,
		InsiderName:     insider,
		InsiderTitle:    "Director",
		TransactionDate: filed.AddDate(0, 0, -1),
		FilingDate:      filed,
		TransactionType: "P",
		Shares:          d("1000"),
		PricePerShare:   d(value).Div(d("1000")),
		TotalValue:      d(value),
	}
}

func TestTransactionRepository_AddDeduplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository().WithDB(newTestDB(t))

	tx := purchase("acme", "Jane Roe", day(2025, 3, 3), "250000")
	added, err := repo.Add(ctx, &tx)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "ACME", tx.Ticker)
	assert.NotEmpty(t, tx.DataHash)

	again := purchase("ACME", "Jane Roe", day(2025, 3, 3), "250000")
	added, err = repo.Add(ctx, &again)
	require.NoError(t, err)
	assert.False(t, added)

	rows, err := repo.Between(ctx, day(2025, 3, 1), day(2025, 3, 31))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTransactionRepository_AddRejectsMalformed(t *testing.T) {
	repo := NewTransactionRepository().WithDB(newTestDB(t))

	tx := purchase("ACME", "Jane Roe", day(2025, 3, 3), "250000")
	tx.Shares = d("-1")

	_, err := repo.Add(context.Background(), &tx)
	assert.Error(t, err)
}

func TestTransactionRepository_Windows(t *testing.T) {
	ctx := context.Background()
	repo := NewTransactionRepository().WithDB(newTestDB(t))

	batch := []model.InsiderTransaction{
		purchase("AAA", "A", day(2025, 3, 1), "100000"),
		purchase("BBB", "B", day(2025, 3, 5), "200000"),
		purchase("CCC", "C", day(2025, 3, 9), "300000"),
	}
	added, err := repo.AddBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	recent, err := repo.RecentByFilingDate(ctx, day(2025, 3, 4))
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "CCC", recent[0].Ticker)
	assert.True(t, recent[0].TotalValue.Equal(d("300000")))

	between, err := repo.Between(ctx, day(2025, 3, 1), day(2025, 3, 5))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, "AAA", between[0].Ticker)
	assert.Equal(t, "BBB", between[1].Ticker)
}

func TestTransactionRepository_RecentQuery(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTransactionRepository().WithDB(mockDB)

	since := day(2025, 3, 1)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "insider_transactions" WHERE filing_date >= $1 ORDER BY filing_date DESC, id DESC`)).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticker", "insider_name"}).AddRow(1, "ACME", "Jane Roe"))

	rows, err := repo.RecentByFilingDate(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Jane Roe", rows[0].InsiderName)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
