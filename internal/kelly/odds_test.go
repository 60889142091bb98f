package kelly_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyrisk/internal/domain"
	"github.com/alejandrodnm/polyrisk/internal/kelly"
)

func TestNetOdds(t *testing.T) {
	// YES at 0.025: gross 39x, net 38.22x after the 2% fee.
	assert.InDelta(t, 38.22, kelly.NetOdds(0.025, domain.SideYes), 1e-9)

	// NO at 0.025 pays almost nothing.
	assert.InDelta(t, 0.025/0.975*0.98, kelly.NetOdds(0.025, domain.SideNo), 1e-9)

	// At 0.50 both sides have identical odds.
	assert.InDelta(t, kelly.NetOdds(0.50, domain.SideYes), kelly.NetOdds(0.50, domain.SideNo), 1e-12)
}

func TestFullKellyFloorsNegative(t *testing.T) {
	assert.Zero(t, kelly.FullKelly(0.30, 1.0))
	assert.InDelta(t, kelly.FullKelly(0.60, 2.0), 0.40, 1e-9)
	assert.InDelta(t, kelly.HalfKelly(0.60, 2.0), 0.20, 1e-9)
}

func TestRecommendStandardTrade(t *testing.T) {
	s := kelly.NewOddsSizer(500)

	rec, err := s.Recommend(0.40, 0.03, domain.SideYes)
	require.NoError(t, err)

	assert.InDelta(t, 0.43, rec.TrueProb, 1e-9)
	assert.InDelta(t, 1.47, rec.NetOdds, 1e-9) // (0.6/0.4)*0.98
	fk := (0.43*1.47 - 0.57) / 1.47
	assert.InDelta(t, fk, rec.FullKellyPct, 1e-9)
	assert.InDelta(t, fk/2, rec.HalfKellyPct, 1e-9)
	assert.InDelta(t, fk/2, rec.RecommendedPct, 1e-9)
	assert.InDelta(t, 10.56, rec.RecommendedDollars, 1e-9)
	assert.Empty(t, rec.Notes)
}

func TestRecommendNoEdge(t *testing.T) {
	s := kelly.NewOddsSizer(500)

	rec, err := s.Recommend(0.50, 0, domain.SideYes)
	require.NoError(t, err)

	assert.Zero(t, rec.FullKellyPct, "fee makes a zero-edge bet negative EV")
	assert.Zero(t, rec.RecommendedPct)
	assert.Zero(t, rec.RecommendedDollars)
	assert.Contains(t, rec.Notes, "no edge")
}

func TestRecommendCapsLargeKelly(t *testing.T) {
	s := kelly.NewOddsSizer(500)

	// 10% edge at even prices: half-Kelly ~9.6% gets clipped to the cap.
	rec, err := s.Recommend(0.50, 0.10, domain.SideYes)
	require.NoError(t, err)

	assert.Greater(t, rec.FullKellyPct, kelly.MaxStakePct*2)
	assert.InDelta(t, kelly.MaxStakePct, rec.RecommendedPct, 1e-9)
	assert.InDelta(t, 25.00, rec.RecommendedDollars, 1e-9)
	assert.Contains(t, rec.Notes, "far exceeds cap")
}

func TestRecommendExtremePriceNote(t *testing.T) {
	s := kelly.NewOddsSizer(500)

	rec, err := s.Recommend(0.025, 0.03, domain.SideYes)
	require.NoError(t, err)

	// fk = (0.055*38.22 - 0.945) / 38.22 ~ 3.03%, under the cap.
	assert.InDelta(t, 0.0302748, rec.FullKellyPct, 1e-6)
	assert.InDelta(t, 7.57, rec.RecommendedDollars, 1e-9)
	assert.Contains(t, rec.Notes, "extreme price")
}

func TestRecommendMinimumStake(t *testing.T) {
	s := kelly.NewOddsSizer(20)

	// A $20 bankroll sizes this trade under the $1 minimum.
	rec, err := s.Recommend(0.40, 0.03, domain.SideYes)
	require.NoError(t, err)

	assert.Zero(t, rec.RecommendedDollars)
	assert.Zero(t, rec.RecommendedPct)
	assert.Contains(t, rec.Notes, "below minimum")
}

func TestRecommendRejectsInvalidPrice(t *testing.T) {
	s := kelly.NewOddsSizer(500)

	_, err := s.Recommend(0, 0.03, domain.SideYes)
	assert.Error(t, err)
	_, err = s.Recommend(1, 0.03, domain.SideYes)
	assert.Error(t, err)
}

func TestRecommendBankrollUpdate(t *testing.T) {
	s := kelly.NewOddsSizer(500)
	before, err := s.Recommend(0.40, 0.03, domain.SideYes)
	require.NoError(t, err)

	s.UpdateBankroll(1000)
	after, err := s.Recommend(0.40, 0.03, domain.SideYes)
	require.NoError(t, err)

	assert.InDelta(t, before.RecommendedDollars*2, after.RecommendedDollars, 0.01)
}
