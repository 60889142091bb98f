package kelly

import (
	"fmt"
	"math"
	"strings"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// Fee and stake bounds of the price-based sizing path.
const (
	MarketFee   = 0.02 // charged on winnings, reduces effective odds
	MaxStakePct = 0.05
	MinStake    = 1.00
)

// NetOdds returns the profit per $1 staked if the bet wins, after fee.
//
//	YES at 0.025: gross 39x, net 38.22x after the 2% fee
//	NO  at 0.025: gross 0.026x, a terrible bet
func NetOdds(entryPrice float64, side domain.Side) float64 {
	var gross float64
	if side == domain.SideYes {
		gross = (1 - entryPrice) / entryPrice
	} else {
		gross = entryPrice / (1 - entryPrice)
	}
	return gross * (1 - MarketFee)
}

// FullKelly returns the full Kelly bankroll fraction for a win
// probability and net odds, floored at 0. Negative Kelly means the
// market has better information than you; never bet it.
func FullKelly(pWin, odds float64) float64 {
	q := 1 - pWin
	return math.Max((pWin*odds-q)/odds, 0)
}

// HalfKelly trades ~25% of expected growth for ~75% less variance.
// Full Kelly produces brutal drawdowns in live trading.
func HalfKelly(pWin, odds float64) float64 {
	return FullKelly(pWin, odds) * 0.5
}

// Recommendation is the full diagnostic output of the price-based sizer.
type Recommendation struct {
	EntryPrice         float64
	Side               domain.Side
	EstimatedEdge      float64
	TrueProb           float64
	NetOdds            float64
	FullKellyPct       float64
	HalfKellyPct       float64
	RecommendedPct     float64 // after caps and minimum-stake check
	RecommendedDollars float64
	Bankroll           float64
	Notes              string
}

// OddsSizer sizes positions from entry price and an externally estimated
// edge, without any trade history. Used standalone and by the simulator
// to sanity-check the stats-driven path.
type OddsSizer struct {
	bankroll   float64
	kellyFrac  float64
	maxPct     float64
	minDollars float64
}

// NewOddsSizer creates a sizer with half-Kelly and the default caps.
func NewOddsSizer(bankroll float64) *OddsSizer {
	return &OddsSizer{
		bankroll:   bankroll,
		kellyFrac:  0.5,
		maxPct:     MaxStakePct,
		minDollars: MinStake,
	}
}

// UpdateBankroll refreshes the balance used for dollar conversion.
func (s *OddsSizer) UpdateBankroll(newBalance float64) {
	s.bankroll = newBalance
}

// Recommend computes the full recommendation for one candidate entry.
// The only hard error is an entry price outside (0, 1); every "don't
// trade" outcome is a zero-sized recommendation with a note, not an error.
func (s *OddsSizer) Recommend(entryPrice, estimatedEdge float64, side domain.Side) (Recommendation, error) {
	if entryPrice <= 0 || entryPrice >= 1 {
		return Recommendation{}, fmt.Errorf("kelly.Recommend: entry price %.4f outside (0, 1)", entryPrice)
	}

	var notes []string

	var pWin float64
	if side == domain.SideYes {
		pWin = math.Min(entryPrice+estimatedEdge, 0.99)
	} else {
		pWin = math.Min((1-entryPrice)+estimatedEdge, 0.99)
	}

	odds := NetOdds(entryPrice, side)
	fk := FullKelly(pWin, odds)
	hk := fk * s.kellyFrac
	recPct := math.Min(hk, s.maxPct)

	if fk == 0 {
		notes = append(notes, "no edge detected, kelly is 0, skipping trade")
		recPct = 0
	} else if fk > s.maxPct*2 {
		notes = append(notes, fmt.Sprintf("kelly %.1f%% far exceeds cap %.0f%%, verify edge estimate", fk*100, s.maxPct*100))
	}
	if entryPrice < 0.05 || entryPrice > 0.95 {
		notes = append(notes, "extreme price, edge estimate uncertainty is high")
	}

	stake := round2(s.bankroll * recPct)
	if stake < s.minDollars {
		stake = 0
		recPct = 0
		notes = append(notes, fmt.Sprintf("stake below minimum $%.2f, skipping", s.minDollars))
	}

	return Recommendation{
		EntryPrice:         entryPrice,
		Side:               side,
		EstimatedEdge:      estimatedEdge,
		TrueProb:           pWin,
		NetOdds:            odds,
		FullKellyPct:       fk,
		HalfKellyPct:       hk,
		RecommendedPct:     recPct,
		RecommendedDollars: stake,
		Bankroll:           s.bankroll,
		Notes:              strings.Join(notes, "; "),
	}, nil
}
