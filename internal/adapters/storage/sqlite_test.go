package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrisk/internal/adapters/storage"
	"github.com/alejandrodnm/polyrisk/internal/domain"
)

func makeTrade(coin string, pnl float64, ts time.Time) domain.TradeResult {
	return domain.TradeResult{
		Timestamp: ts.UTC().Truncate(time.Second),
		Won:       pnl > 0,
		PnL:       pnl,
		Coin:      coin,
		MarketID:  "mkt-" + coin,
		Note:      "",
	}
}

func TestSQLiteSessionStore_SaveAndRecentTrades(t *testing.T) {
	db, err := storage.NewSQLiteSessionStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	base := time.Now().UTC()
	require.NoError(t, db.SaveTrade(ctx, makeTrade("BTC", 5.25, base.Add(-2*time.Minute))))
	require.NoError(t, db.SaveTrade(ctx, makeTrade("ETH", -3.10, base.Add(-time.Minute))))
	require.NoError(t, db.SaveTrade(ctx, makeTrade("SOL", 1.00, base)))

	trades, err := db.RecentTrades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Más reciente primero
	assert.Equal(t, "SOL", trades[0].Coin)
	assert.Equal(t, "ETH", trades[1].Coin)
	assert.False(t, trades[1].Won)
	assert.InDelta(t, -3.10, trades[1].PnL, 0.001)
	assert.Equal(t, "mkt-ETH", trades[1].MarketID)
}

func TestSQLiteSessionStore_RecentTradesEmpty(t *testing.T) {
	db, err := storage.NewSQLiteSessionStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	trades, err := db.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestSQLiteSessionStore_SaveHalt(t *testing.T) {
	db, err := storage.NewSQLiteSessionStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = db.SaveHalt(context.Background(), domain.HaltRecord{
		Kind:              "trip",
		Reason:            "consecutive_losses",
		Message:           "3 consecutive losses (max=3)",
		Timestamp:         time.Now().UTC(),
		ConsecutiveLosses: 3,
		SessionPnL:        -29.75,
	})
	assert.NoError(t, err)
}

func TestSQLiteSessionStore_SaveHeartbeat(t *testing.T) {
	db, err := storage.NewSQLiteSessionStore(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = db.SaveHeartbeat(context.Background(), domain.HeartbeatRecord{
		Timestamp:     time.Now().UTC(),
		Balance:       470.25,
		SessionPnL:    -29.75,
		SessionPnLPct: -0.0595,
		OpenPositions: 1,
		ExposureUSD:   20.00,
		TradesSeen:    3,
		TradingOpen:   false,
		TripReason:    "consecutive_losses",
	})
	assert.NoError(t, err)
}

func TestSQLiteSessionStore_Reopen(t *testing.T) {
	path := t.TempDir() + "/session.db"

	db, err := storage.NewSQLiteSessionStore(path)
	require.NoError(t, err)
	require.NoError(t, db.SaveTrade(context.Background(), makeTrade("BTC", 2.00, time.Now())))
	require.NoError(t, db.Close())

	// El histórico sobrevive al reinicio del proceso.
	db2, err := storage.NewSQLiteSessionStore(path)
	require.NoError(t, err)
	defer db2.Close()

	trades, err := db2.RecentTrades(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "BTC", trades[0].Coin)
}
