package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrisk/internal/domain"
	"github.com/alejandrodnm/polyrisk/internal/risk"
)

func testGroups() domain.GroupMap {
	return domain.BuildGroupMap(map[string][]string{
		"crypto_large_cap": {"BTC", "ETH", "SOL", "XRP"},
	})
}

func TestLimiterSinglePositionCap(t *testing.T) {
	cl := risk.NewCorrelationLimiter(453.08, risk.DefaultLimiterConfig(), testGroups())

	// 5% of 453.08 = 22.654.
	ok, _ := cl.CanEnter("XRP", domain.SideNo, 50.00)
	assert.False(t, ok)

	ok, reason := cl.CanEnter("XRP", domain.SideNo, 22.00)
	assert.True(t, ok)
	assert.Equal(t, "OK", reason)
}

func TestLimiterGroupCountLimit(t *testing.T) {
	cl := risk.NewCorrelationLimiter(453.08, risk.DefaultLimiterConfig(), testGroups())

	ok, _ := cl.CanEnter("BTC", domain.SideYes, 20.00)
	require.True(t, ok)
	cl.OpenPosition("BTC", domain.SideYes, 20.00, "mkt-btc")

	ok, _ = cl.CanEnter("ETH", domain.SideYes, 20.00)
	require.True(t, ok)
	cl.OpenPosition("ETH", domain.SideYes, 20.00, "mkt-eth")

	ok, reason := cl.CanEnter("SOL", domain.SideYes, 20.00)
	assert.False(t, ok)
	assert.Contains(t, reason, "crypto_large_cap")
	assert.Contains(t, reason, "BTC")
	assert.Contains(t, reason, "ETH")
}

func TestLimiterNoDoubleEntry(t *testing.T) {
	cl := risk.NewCorrelationLimiter(1000, risk.DefaultLimiterConfig(), testGroups())

	cl.OpenPosition("BTC", domain.SideYes, 10.00, "mkt-1")

	ok, reason := cl.CanEnter("btc", domain.SideNo, 5.00)
	assert.False(t, ok, "same coin blocked regardless of side and size")
	assert.Contains(t, reason, "BTC")

	// Closing frees the coin for re-entry.
	cl.CloseByCoin("BTC", 2.50)
	ok, _ = cl.CanEnter("BTC", domain.SideNo, 5.00)
	assert.True(t, ok)
}

func TestLimiterTotalExposureCap(t *testing.T) {
	cfg := risk.DefaultLimiterConfig()
	cfg.MaxCorrelatedPositions = 10
	cfg.MaxGroupExposurePct = 1
	cfg.MaxSameDirection = 10
	cfg.MaxSinglePositionPct = 0.10
	cl := risk.NewCorrelationLimiter(1000, cfg, testGroups())

	cl.OpenPosition("BTC", domain.SideYes, 60.00, "m1")
	cl.OpenPosition("ETH", domain.SideYes, 60.00, "m2")

	// 120 + 40 = 160 > 15% of 1000.
	ok, reason := cl.CanEnter("SOL", domain.SideYes, 40.00)
	assert.False(t, ok)
	assert.Contains(t, reason, "total exposure")

	ok, _ = cl.CanEnter("SOL", domain.SideYes, 25.00)
	assert.True(t, ok)
}

func TestLimiterGroupExposureCap(t *testing.T) {
	cfg := risk.DefaultLimiterConfig()
	cfg.MaxSinglePositionPct = 0.08
	cl := risk.NewCorrelationLimiter(1000, cfg, testGroups())

	cl.OpenPosition("BTC", domain.SideYes, 60.00, "m1")

	// Group would hold 60 + 45 = 105 > 10% of 1000; count cap not yet hit.
	ok, reason := cl.CanEnter("ETH", domain.SideYes, 45.00)
	assert.False(t, ok)
	assert.Contains(t, reason, "crypto_large_cap")
	assert.Contains(t, reason, "exposure")

	ok, _ = cl.CanEnter("ETH", domain.SideYes, 30.00)
	assert.True(t, ok)
}

func TestLimiterSameDirectionCap(t *testing.T) {
	cfg := risk.DefaultLimiterConfig()
	cfg.MaxCorrelatedPositions = 10
	cfg.MaxGroupExposurePct = 1
	cfg.MaxTotalExposurePct = 1
	cl := risk.NewCorrelationLimiter(10000, cfg, testGroups())

	cl.OpenPosition("BTC", domain.SideYes, 50.00, "m1")
	cl.OpenPosition("ETH", domain.SideYes, 50.00, "m2")
	cl.OpenPosition("SOL", domain.SideYes, 50.00, "m3")

	ok, reason := cl.CanEnter("XRP", domain.SideYes, 50.00)
	assert.False(t, ok)
	assert.Contains(t, reason, "YES")

	// Opposite direction still allowed.
	ok, _ = cl.CanEnter("XRP", domain.SideNo, 50.00)
	assert.True(t, ok)
}

func TestLimiterUnknownGroupStillLimited(t *testing.T) {
	cl := risk.NewCorrelationLimiter(10000, risk.DefaultLimiterConfig(), testGroups())

	p := cl.OpenPosition("DOGE", domain.SideYes, 50.00, "m1")
	assert.Equal(t, domain.UnknownGroup, p.Group)
	cl.OpenPosition("PEPE", domain.SideYes, 50.00, "m2")

	ok, reason := cl.CanEnter("SHIB", domain.SideYes, 50.00)
	assert.False(t, ok)
	assert.Contains(t, reason, domain.UnknownGroup)
}

func TestLimiterClosePosition(t *testing.T) {
	cl := risk.NewCorrelationLimiter(1000, risk.DefaultLimiterConfig(), testGroups())

	pos := cl.OpenPosition("BTC", domain.SideYes, 20.00, "m1")
	require.NotEmpty(t, pos.ID)
	assert.True(t, pos.IsOpen())

	closed := cl.ClosePosition(pos.ID, 4.20)
	require.NotNil(t, closed)
	assert.False(t, closed.IsOpen())
	require.NotNil(t, closed.PnL)
	assert.InDelta(t, 4.20, *closed.PnL, 1e-9)
	assert.Equal(t, 0, cl.OpenCount())

	// Unknown or already-closed ids are a soft miss, not an error.
	assert.Nil(t, cl.ClosePosition(pos.ID, 0))
	assert.Nil(t, cl.ClosePosition("nope", 0))
	assert.Nil(t, cl.CloseByCoin("BTC", 0))
}

func TestLimiterPortfolioValueRefresh(t *testing.T) {
	cl := risk.NewCorrelationLimiter(1000, risk.DefaultLimiterConfig(), testGroups())

	// 5% of 1000 allows up to $50.
	ok, _ := cl.CanEnter("BTC", domain.SideYes, 45.00)
	require.True(t, ok)

	// After drawdown the same size breaches the cap.
	cl.UpdatePortfolioValue(800)
	ok, reason := cl.CanEnter("BTC", domain.SideYes, 45.00)
	assert.False(t, ok)
	assert.Contains(t, reason, "single position")
}

func TestLimiterStatusAndReport(t *testing.T) {
	cl := risk.NewCorrelationLimiter(453.08, risk.DefaultLimiterConfig(), testGroups())

	cl.OpenPosition("BTC", domain.SideYes, 20.00, "m1")
	cl.OpenPosition("ETH", domain.SideYes, 20.00, "m2")
	cl.CloseByCoin("ETH", -3.00)

	s := cl.Status()
	assert.Equal(t, 1, s.OpenPositions)
	assert.InDelta(t, 20.00, s.TotalExposureUSD, 1e-9)
	assert.InDelta(t, 20.00/453.08, s.TotalExposurePct, 1e-9)
	assert.Equal(t, 1, s.ClosedCount)

	gs, ok := s.GroupSummary["crypto_large_cap"]
	require.True(t, ok)
	assert.Equal(t, []string{"BTC"}, gs.Coins)
	assert.InDelta(t, 20.00, gs.Exposure, 1e-9)

	report := cl.RiskReport()
	assert.Contains(t, report, "crypto_large_cap")
	assert.Contains(t, report, "BTC")
}
