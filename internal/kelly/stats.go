package kelly

import (
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// StatsConfig holds the rolling-window parameters and the floors that
// keep the Kelly formula away from thin or skewed samples.
type StatsConfig struct {
	WindowSize     int     // trades kept per asset and in the global pool
	MinTrades      int     // non-scratch samples required before stats are ready
	ScratchEpsilon float64 // |pnl| below this is a fee-wash, excluded from stats
	MinWinRate     float64 // win rate at or below this forces kelly to 0
	MinRewardRatio float64 // avg_win/avg_loss at or below this forces kelly to 0
}

// DefaultStatsConfig returns the windowing defaults used in production.
func DefaultStatsConfig() StatsConfig {
	return StatsConfig{
		WindowSize:     20,
		MinTrades:      5,
		ScratchEpsilon: 0.005,
		MinWinRate:     0.40,
		MinRewardRatio: 0.50,
	}
}

// Stats is the derived view of one rolling window. Recomputed from the
// window contents on every call, never cached across mutations, so it is
// always consistent with what the window currently holds.
type Stats struct {
	WinRate     float64
	AvgWin      float64
	AvgLoss     float64
	RewardRatio float64
	KellyF      float64
	SampleSize  int  // non-scratch trades considered
	Ready       bool // enough samples with both wins and losses present
	ComputedAt  time.Time
}

// StatsManager keeps one bounded rolling window of trade records per
// asset plus one global pool across all assets. One instance per session;
// windows survive across sessions via Snapshot/Restore.
type StatsManager struct {
	cfg      StatsConfig
	perAsset map[string][]domain.TradeRecord
	global   []domain.TradeRecord
}

// NewStatsManager creates an empty manager. Zero config fields fall back
// to defaults.
func NewStatsManager(cfg StatsConfig) *StatsManager {
	def := DefaultStatsConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MinTrades <= 0 {
		cfg.MinTrades = def.MinTrades
	}
	if cfg.ScratchEpsilon <= 0 {
		cfg.ScratchEpsilon = def.ScratchEpsilon
	}
	if cfg.MinWinRate <= 0 {
		cfg.MinWinRate = def.MinWinRate
	}
	if cfg.MinRewardRatio <= 0 {
		cfg.MinRewardRatio = def.MinRewardRatio
	}
	return &StatsManager{
		cfg:      cfg,
		perAsset: make(map[string][]domain.TradeRecord),
	}
}

// RecordTrade appends a resolved trade to its asset's window and to the
// global pool, evicting the oldest entry once a window is full.
func (m *StatsManager) RecordTrade(rec domain.TradeRecord) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	key := strings.ToUpper(rec.Coin)
	rec.Coin = key
	m.perAsset[key] = pushBounded(m.perAsset[key], rec, m.cfg.WindowSize)
	m.global = pushBounded(m.global, rec, m.cfg.WindowSize)
}

// StatsFor recomputes the stats for one asset's current window.
func (m *StatsManager) StatsFor(coin string) Stats {
	return m.compute(m.perAsset[strings.ToUpper(coin)])
}

// GlobalStats recomputes the stats of the cross-asset pool.
func (m *StatsManager) GlobalStats() Stats {
	return m.compute(m.global)
}

// Assets returns the asset symbols with at least one recorded trade.
func (m *StatsManager) Assets() []string {
	out := make([]string, 0, len(m.perAsset))
	for k := range m.perAsset {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// compute derives stats from a window. Scratch trades are filtered first;
// the floors then decide whether the Kelly formula is trusted at all.
//
// f* = (p*b - q) / b with q = 1-p and b = avg_win/avg_loss, floored at 0.
// A negative Kelly fraction means "don't bet", never "bet against".
func (m *StatsManager) compute(window []domain.TradeRecord) Stats {
	st := Stats{ComputedAt: time.Now().UTC()}

	var wins, losses []float64
	for _, rec := range window {
		if math.Abs(rec.PnLPct) < m.cfg.ScratchEpsilon {
			continue
		}
		if rec.PnLPct > 0 {
			wins = append(wins, rec.PnLPct)
		} else {
			losses = append(losses, -rec.PnLPct)
		}
	}
	st.SampleSize = len(wins) + len(losses)

	if st.SampleSize < m.cfg.MinTrades || len(wins) == 0 || len(losses) == 0 {
		return st
	}
	st.Ready = true

	st.WinRate = float64(len(wins)) / float64(st.SampleSize)
	st.AvgWin = mean(wins)
	st.AvgLoss = mean(losses)
	st.RewardRatio = st.AvgWin / st.AvgLoss

	if st.RewardRatio <= m.cfg.MinRewardRatio || st.WinRate <= m.cfg.MinWinRate {
		slog.Debug("kelly floored to 0",
			"win_rate", st.WinRate,
			"reward_ratio", st.RewardRatio,
			"sample_size", st.SampleSize,
		)
		return st
	}

	p := st.WinRate
	b := st.RewardRatio
	q := 1 - p
	st.KellyF = math.Max((p*b-q)/b, 0)
	return st
}

func pushBounded(window []domain.TradeRecord, rec domain.TradeRecord, limit int) []domain.TradeRecord {
	window = append(window, rec)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

func mean(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
