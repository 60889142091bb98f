package kelly_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrisk/internal/kelly"
)

func TestSizerRejectsBadInputs(t *testing.T) {
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), kelly.NewStatsManager(kelly.DefaultStatsConfig()))

	v := s.Size("BTC", 0, 0.5)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "bankroll")

	v = s.Size("BTC", 500, 0)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "edge score")
}

func TestSizerBootstrapFallback(t *testing.T) {
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), kelly.NewStatsManager(kelly.DefaultStatsConfig()))

	// Zero history and any positive edge: allowed at exactly the
	// bootstrap fraction.
	v := s.Size("BTC", 500, 0.7)
	require.True(t, v.Allowed)
	assert.Equal(t, 0.02, v.PositionPct)
	assert.InDelta(t, 10.00, v.PositionDollars, 1e-9)
	assert.Equal(t, "BTC_bootstrap", v.StatsSource)
	assert.False(t, v.Capped)
}

func TestSizerGlobalFallback(t *testing.T) {
	m := kelly.NewStatsManager(kelly.DefaultStatsConfig())
	// Only BTC history exists; sizing ETH falls back to the global pool.
	// Global: p=2/3, b=2 so f* = (4/3 - 1/3) / 2 = 0.5.
	feed(m, "BTC", 4, 0.50, 2, 0.25)
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), m)

	v := s.Size("ETH", 1000, 0.5)
	require.True(t, v.Allowed)
	assert.Equal(t, "global", v.StatsSource)
	// 0.5 * 0.5 * 0.5 = 0.125, capped at 0.10.
	assert.InDelta(t, 0.10, v.PositionPct, 1e-9)
	assert.True(t, v.Capped)
	assert.InDelta(t, 100.00, v.PositionDollars, 1e-9)
}

func TestSizerPerAssetPreferred(t *testing.T) {
	m := kelly.NewStatsManager(kelly.DefaultStatsConfig())
	feed(m, "BTC", 12, 0.50, 8, 0.25) // f* = 0.4
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), m)

	v := s.Size("BTC", 500, 0.5)
	require.True(t, v.Allowed)
	assert.Equal(t, "BTC", v.StatsSource)
	// 0.4 * 0.5 * 0.5 = 0.10, exactly at the cap, not clipped.
	assert.InDelta(t, 0.10, v.PositionPct, 1e-9)
	assert.False(t, v.Capped)
	assert.InDelta(t, 50.00, v.PositionDollars, 1e-9)
}

func TestSizerRejectsWhenKellyZero(t *testing.T) {
	m := kelly.NewStatsManager(kelly.DefaultStatsConfig())
	// Ready stats, but win rate at the floor forces kelly to 0.
	feed(m, "BTC", 8, 0.50, 12, 0.25)
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), m)

	v := s.Size("BTC", 500, 0.8)
	assert.False(t, v.Allowed)
	assert.Equal(t, "BTC", v.StatsSource)
	assert.Contains(t, v.Reason, "win_rate=0.40")
	assert.Contains(t, v.Reason, "reward_ratio=2.00")
}

func TestSizerRejectsBelowMinimum(t *testing.T) {
	m := kelly.NewStatsManager(kelly.DefaultStatsConfig())
	// p=0.5, b=1.2: f* = (0.6-0.5)/1.2 = 0.0833. With a weak edge the
	// sized fraction lands under the 0.5% floor.
	feed(m, "BTC", 10, 0.24, 10, 0.20)
	s := kelly.NewSizer(kelly.DefaultSizerConfig(), m)

	v := s.Size("BTC", 500, 0.1)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "below minimum")
}

func TestComposeEdgeScoreBounds(t *testing.T) {
	w := kelly.DefaultEdgeWeights()

	// Everything at or beyond its normalization ceiling saturates at 1.
	score := kelly.ComposeEdgeScore(w, 0.9, 0.5, 1.5, 1.2, 2.0, 5.0)
	assert.InDelta(t, 1.0, score, 1e-9)

	assert.Zero(t, kelly.ComposeEdgeScore(w, 0, 0.5, 0, 0, 0, 0))

	// Zero velocityMax never divides by zero.
	score = kelly.ComposeEdgeScore(w, 0.3, 0, 1, 1, 1, 2)
	assert.InDelta(t, 0.30+0.25+0.10+0.15, score, 1e-9)
}

func TestComposeEdgeScoreWeighting(t *testing.T) {
	w := kelly.DefaultEdgeWeights()

	// velocity 0.25/0.5=0.5, volume 1.0/2=0.5, mtf 1.0, book 0.8,
	// sentiment 1.0 (clamped):
	// 0.20*0.5 + 0.15*0.5 + 0.30*1.0 + 0.25*0.8 + 0.10*1.0 = 0.775
	score := kelly.ComposeEdgeScore(w, -0.25, 0.5, 1.0, 0.8, 1.2, 1.0)
	assert.InDelta(t, 0.775, score, 1e-9)
}
