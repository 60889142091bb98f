// Package edge estimates the real edge over the market's implied
// probability from observed trade outcomes, bucketed by entry price and
// side. A hardcoded edge guess is fiction; this starts conservative and
// becomes data-driven as resolved trades accumulate.
package edge

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// BucketSize is the width of each price bucket.
const BucketSize = 0.05

// Config holds the calibration parameters.
type Config struct {
	DefaultEdge float64 // conservative edge returned before calibration
	MinSamples  int     // samples for full trust in observed data
	MaxEdge     float64 // sanity cap on any edge estimate
}

// DefaultConfig returns the calibration defaults used in production.
func DefaultConfig() Config {
	return Config{
		DefaultEdge: 0.01,
		MinSamples:  30,
		MaxEdge:     0.25,
	}
}

// Bucket rounds a price to the nearest BucketSize increment using
// round-half-up (0.025 always becomes 0.05, never 0.00) and clamps the
// result to [0.00, 1.00]. Idempotent: Bucket(Bucket(p)) == Bucket(p).
func Bucket(price float64) float64 {
	b := math.Floor(price/BucketSize+0.5) * BucketSize
	b = math.Max(0, math.Min(1, b))
	// Kill float artifacts like 0.30000000000000004.
	return math.Round(b*100) / 100
}

// BucketStats is the win/loss record of one (price bucket, side) pair.
// YES at 0.40 and NO at 0.40 never share statistics; they are different
// informational states of the market.
type BucketStats struct {
	Bucket     float64     `json:"bucket"`
	Side       domain.Side `json:"side"`
	Wins       int         `json:"wins"`
	Losses     int         `json:"losses"`
	FirstTrade time.Time   `json:"first_trade"`
	LastTrade  time.Time   `json:"last_trade"`
}

// Total returns the sample count.
func (b BucketStats) Total() int { return b.Wins + b.Losses }

// MarketImplied is the win probability the market assigns this bucket's
// side: the bucket price for YES, its complement for NO.
func (b BucketStats) MarketImplied() float64 {
	return b.Side.MarketImplied(b.Bucket)
}

// Stats is the full diagnostic view of one bucket.
type Stats struct {
	Bucket         float64
	Side           domain.Side
	Wins           int
	Losses         int
	Total          int
	WinRate        float64 // meaningful only when Total > 0
	MarketImplied  float64
	RawEdge        float64 // meaningful only when Total > 0
	Confidence     float64
	CalibratedEdge float64
	IsCalibrated   bool
	SamplesNeeded  int
	FirstTrade     time.Time
	LastTrade      time.Time
}

// Tracker accumulates per-bucket outcomes and produces blended edge
// estimates. One instance per deployment; persisted via Snapshot/Restore.
type Tracker struct {
	cfg         Config
	buckets     map[string]*BucketStats
	totalTrades int
	createdAt   time.Time
}

// NewTracker creates an empty tracker. Zero config fields fall back to
// defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.DefaultEdge <= 0 {
		cfg.DefaultEdge = def.DefaultEdge
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.MaxEdge <= 0 {
		cfg.MaxEdge = def.MaxEdge
	}
	return &Tracker{
		cfg:       cfg,
		buckets:   make(map[string]*BucketStats),
		createdAt: time.Now().UTC(),
	}
}

// GetEdge returns the estimated edge for a price/side pair as a fraction,
// always in [0, MaxEdge].
//
// With zero samples it returns the conservative default. Otherwise the
// observed edge is blended against the default by a confidence weight
// that ramps linearly from 0 at no samples to 1 at MinSamples, so the
// estimate moves smoothly toward the data with no cliff at the threshold.
// Negative blends floor at 0: the tracker never recommends betting
// against your own side.
func (t *Tracker) GetEdge(price float64, side domain.Side) float64 {
	bucket := Bucket(price)
	stats, ok := t.buckets[bucketKey(bucket, side)]
	if !ok || stats.Total() == 0 {
		return t.cfg.DefaultEdge
	}

	observed := float64(stats.Wins) / float64(stats.Total())
	raw := observed - stats.MarketImplied()
	confidence := math.Min(float64(stats.Total())/float64(t.cfg.MinSamples), 1)
	blended := confidence*raw + (1-confidence)*t.cfg.DefaultEdge
	final := math.Max(0, math.Min(blended, t.cfg.MaxEdge))

	slog.Debug("edge estimate",
		"bucket", fmt.Sprintf("%.2f:%s", bucket, side),
		"wins", stats.Wins,
		"losses", stats.Losses,
		"raw", raw,
		"confidence", confidence,
		"final", final,
	)
	return math.Round(final*1e6) / 1e6
}

// RecordResult records one resolved trade. Call exactly once per trade;
// there is no deduplication.
func (t *Tracker) RecordResult(price float64, side domain.Side, won bool) {
	bucket := Bucket(price)
	stats := t.getOrCreate(bucket, side)
	now := time.Now().UTC()

	if won {
		stats.Wins++
	} else {
		stats.Losses++
	}
	if stats.FirstTrade.IsZero() {
		stats.FirstTrade = now
	}
	stats.LastTrade = now
	t.totalTrades++

	slog.Info("edge result recorded",
		"bucket", fmt.Sprintf("%.2f:%s", bucket, side),
		"won", won,
		"wins", stats.Wins,
		"losses", stats.Losses,
		"samples_needed", max(0, t.cfg.MinSamples-stats.Total()),
	)
}

// GetStats returns the full diagnostics for the bucket covering a price.
func (t *Tracker) GetStats(price float64, side domain.Side) Stats {
	bucket := Bucket(price)
	stats, ok := t.buckets[bucketKey(bucket, side)]
	if !ok {
		stats = &BucketStats{Bucket: bucket, Side: side}
	}
	return t.diagnostics(*stats)
}

// AllStats returns diagnostics for every bucket with at least one trade,
// ordered by bucket then side.
func (t *Tracker) AllStats() []Stats {
	out := make([]Stats, 0, len(t.buckets))
	for _, stats := range t.buckets {
		if stats.Total() > 0 {
			out = append(out, t.diagnostics(*stats))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bucket != out[j].Bucket {
			return out[i].Bucket < out[j].Bucket
		}
		return out[i].Side < out[j].Side
	})
	return out
}

// TotalTrades returns the number of results recorded over the tracker's
// lifetime, including entries restored from a snapshot.
func (t *Tracker) TotalTrades() int { return t.totalTrades }

func (t *Tracker) diagnostics(stats BucketStats) Stats {
	s := Stats{
		Bucket:        stats.Bucket,
		Side:          stats.Side,
		Wins:          stats.Wins,
		Losses:        stats.Losses,
		Total:         stats.Total(),
		MarketImplied: stats.MarketImplied(),
		Confidence:    math.Min(float64(stats.Total())/float64(t.cfg.MinSamples), 1),
		IsCalibrated:  stats.Total() >= t.cfg.MinSamples,
		SamplesNeeded: max(0, t.cfg.MinSamples-stats.Total()),
		FirstTrade:    stats.FirstTrade,
		LastTrade:     stats.LastTrade,
	}
	s.CalibratedEdge = t.GetEdge(stats.Bucket, stats.Side)
	if s.Total > 0 {
		s.WinRate = float64(stats.Wins) / float64(s.Total)
		s.RawEdge = s.WinRate - s.MarketImplied
	}
	return s
}

func (t *Tracker) getOrCreate(bucket float64, side domain.Side) *BucketStats {
	key := bucketKey(bucket, side)
	stats, ok := t.buckets[key]
	if !ok {
		stats = &BucketStats{Bucket: bucket, Side: side}
		t.buckets[key] = stats
	}
	return stats
}

func bucketKey(bucket float64, side domain.Side) string {
	return fmt.Sprintf("%.2f:%s", bucket, side)
}
