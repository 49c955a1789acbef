package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insiderbot/src/model"
)

func openTrade(id, ticker string) model.Trade {
	return model.Trade{
		TradeID:         id,
		SignalID:        "sig-" + id,
		Ticker:          ticker,
		EntryDate:       day(2025, 3, 3),
		EntryPrice:      d("50.05"),
		Shares:          100,
		EntryCommission: d("5.005"),
		StopLoss:        d("48.5"),
		ProfitTarget:    d("53"),
		Status:          model.TradeStatusOpen,
	}
}

func TestTradeRepository_OpenThenClose(t *testing.T) {
	ctx := context.Background()
	repo := NewTradeRepository().WithDB(newTestDB(t))

	a, b := openTrade("t-1", "AAA"), openTrade("t-2", "BBB")
	require.NoError(t, repo.Create(ctx, &a))
	require.NoError(t, repo.Create(ctx, &b))

	open, err := repo.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.True(t, open[0].EntryPrice.Equal(d("50.05")))

	exit := day(2025, 3, 7)
	closed := a
	closed.ExitDate = &exit
	closed.ExitPrice = d("48.4515")
	closed.ExitReason = model.ExitReasonStopLoss
	closed.ExitCommission = d("4.84515")
	closed.GrossPnL = d("-159.85")
	closed.NetPnL = d("-169.70015")
	closed.ReturnPct = d("-0.0339")
	closed.HoldingDays = 4

	require.NoError(t, repo.ApplyUpdate(ctx, closed.CloseUpdate()))

	err = repo.ApplyUpdate(ctx, closed.CloseUpdate())
	assert.True(t, errors.Is(err, ErrTradeNotOpen))

	open, err = repo.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "t-2", open[0].TradeID)

	done, err := repo.FindClosed(ctx)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, model.ExitReasonStopLoss, done[0].ExitReason)
	assert.True(t, done[0].NetPnL.Equal(d("-169.70015")))
	assert.Equal(t, 4, done[0].HoldingDays)

	all, err := repo.FindAll(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTradeRepository_GetOpenTradesQuery(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTradeRepository().WithDB(mockDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trades" WHERE status = $1 ORDER BY entry_date ASC, id ASC`)).
		WithArgs(model.TradeStatusOpen).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trade_id", "ticker", "shares", "status"}).
			AddRow(1, "t-1", "AAA", 100, "OPEN"))

	trades, err := repo.GetOpenTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(100), trades[0].Shares)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestTradeRepository_ApplyUpdateOnlyTouchesOpenRows(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := NewTradeRepository().WithDB(mockDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "trades" SET .* WHERE trade_id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.ApplyUpdate(context.Background(), model.TradeUpdate{TradeID: "t-9", ExitReason: model.ExitReasonManual})
	require.ErrorIs(t, err, ErrTradeNotOpen)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
