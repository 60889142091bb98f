package kelly

import (
	"fmt"
	"math"
	"strings"
)

// SizerConfig controls the stats-driven sizing path.
type SizerConfig struct {
	Fraction       float64 // fractional-Kelly multiplier, 0.5 = half-Kelly
	MaxPositionPct float64 // hard cap on the final bankroll fraction
	MinPositionPct float64 // below this the trade is not worth placing
	BootstrapPct   float64 // fixed fraction used before any stats are ready
}

// DefaultSizerConfig returns the sizing defaults used in production.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		Fraction:       0.5,
		MaxPositionPct: 0.10,
		MinPositionPct: 0.005,
		BootstrapPct:   0.02,
	}
}

// Verdict is the sizing decision for one candidate trade. Allowed carries
// the sized position; a rejection carries only the reason.
type Verdict struct {
	Allowed         bool
	PositionPct     float64
	PositionDollars float64
	StatsSource     string // "BTC", "global", or "BTC_bootstrap"
	Capped          bool   // sizing was clipped at MaxPositionPct
	Reason          string
}

// Sizer converts rolling trade statistics plus an external edge score
// into a fractional-Kelly position size.
type Sizer struct {
	cfg   SizerConfig
	stats *StatsManager
}

// NewSizer builds a sizer over the given stats manager. Zero config
// fields fall back to defaults.
func NewSizer(cfg SizerConfig, stats *StatsManager) *Sizer {
	def := DefaultSizerConfig()
	if cfg.Fraction <= 0 {
		cfg.Fraction = def.Fraction
	}
	if cfg.MaxPositionPct <= 0 {
		cfg.MaxPositionPct = def.MaxPositionPct
	}
	if cfg.MinPositionPct <= 0 {
		cfg.MinPositionPct = def.MinPositionPct
	}
	if cfg.BootstrapPct <= 0 {
		cfg.BootstrapPct = def.BootstrapPct
	}
	return &Sizer{cfg: cfg, stats: stats}
}

// Size produces the verdict for one candidate trade. It prefers the
// asset's own stats, falls back to the global pool, and before either is
// ready sizes at the fixed bootstrap fraction so trading can start while
// statistics accumulate.
func (s *Sizer) Size(coin string, bankroll, edgeScore float64) Verdict {
	if bankroll <= 0 {
		return Verdict{Reason: fmt.Sprintf("bankroll $%.2f is not positive", bankroll)}
	}
	if edgeScore <= 0 {
		return Verdict{Reason: fmt.Sprintf("edge score %.3f is not positive", edgeScore)}
	}

	key := strings.ToUpper(coin)
	source := key
	st := s.stats.StatsFor(key)
	if !st.Ready {
		source = "global"
		st = s.stats.GlobalStats()
	}

	if !st.Ready {
		// Nothing to learn from yet. Trade small instead of refusing.
		return Verdict{
			Allowed:         true,
			PositionPct:     s.cfg.BootstrapPct,
			PositionDollars: round2(bankroll * s.cfg.BootstrapPct),
			StatsSource:     fmt.Sprintf("%s_bootstrap", key),
			Reason:          "insufficient history, bootstrap sizing",
		}
	}

	if st.KellyF == 0 {
		return Verdict{
			StatsSource: source,
			Reason: fmt.Sprintf(
				"kelly is 0 (win_rate=%.2f, reward_ratio=%.2f, n=%d), no favorable edge",
				st.WinRate, st.RewardRatio, st.SampleSize),
		}
	}

	pct := st.KellyF * s.cfg.Fraction * edgeScore
	capped := false
	if pct > s.cfg.MaxPositionPct {
		pct = s.cfg.MaxPositionPct
		capped = true
	}
	if pct < s.cfg.MinPositionPct {
		return Verdict{
			StatsSource: source,
			Reason: fmt.Sprintf(
				"sized fraction %.4f below minimum %.4f, not worth placing",
				pct, s.cfg.MinPositionPct),
		}
	}

	return Verdict{
		Allowed:         true,
		PositionPct:     pct,
		PositionDollars: round2(bankroll * pct),
		StatsSource:     source,
		Capped:          capped,
	}
}

// EdgeWeights are the blend weights of ComposeEdgeScore. They must sum
// to 1.0; their values are strategy policy, not derived from theory.
type EdgeWeights struct {
	Velocity  float64
	Volume    float64
	MTF       float64
	Book      float64
	Sentiment float64
}

// DefaultEdgeWeights returns the blend used by the production strategies.
func DefaultEdgeWeights() EdgeWeights {
	return EdgeWeights{
		Velocity:  0.20,
		Volume:    0.15,
		MTF:       0.30,
		Book:      0.25,
		Sentiment: 0.10,
	}
}

// ComposeEdgeScore blends independent signal-quality inputs into the
// single [0,1] scalar consumed by Size. Pure and stateless; it exists so
// the sizing math never learns any one strategy's signal vocabulary.
//
// velocity is normalized against velocityMax, volumeRatio against a 2x
// surge; every component is clamped to [0,1] before weighting.
func ComposeEdgeScore(w EdgeWeights, velocity, velocityMax, mtfConfidence, bookConfidence, sentimentMult, volumeRatio float64) float64 {
	velNorm := 0.0
	if velocityMax > 0 {
		velNorm = clamp01(math.Abs(velocity) / velocityMax)
	}
	score := w.Velocity*velNorm +
		w.Volume*clamp01(volumeRatio/2) +
		w.MTF*clamp01(mtfConfidence) +
		w.Book*clamp01(bookConfidence) +
		w.Sentiment*clamp01(sentimentMult)
	return clamp01(score)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
