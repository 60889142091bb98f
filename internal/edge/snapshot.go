package edge

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// SnapshotVersion is the schema version written by Snapshot. Version 1
// files (bucket keys without a side suffix) are rejected outright on
// Restore; the caller starts fresh and re-accumulates calibration data.
const SnapshotVersion = 2

// Snapshot is the JSON-serializable state of a Tracker. The calibration
// constants in effect at save time travel with the data so a reader can
// tell how the estimates were produced.
type Snapshot struct {
	Version     int                    `json:"version"`
	CreatedAt   time.Time              `json:"created_at"`
	SavedAt     time.Time              `json:"saved_at"`
	TotalTrades int                    `json:"total_trades"`
	DefaultEdge float64                `json:"default_edge"`
	MinSamples  int                    `json:"min_samples"`
	Buckets     map[string]BucketStats `json:"buckets"`
}

// Snapshot captures the full bucket map for persistence.
func (t *Tracker) Snapshot() Snapshot {
	buckets := make(map[string]BucketStats, len(t.buckets))
	for key, stats := range t.buckets {
		buckets[key] = *stats
	}
	return Snapshot{
		Version:     SnapshotVersion,
		CreatedAt:   t.createdAt,
		SavedAt:     time.Now().UTC(),
		TotalTrades: t.totalTrades,
		DefaultEdge: t.cfg.DefaultEdge,
		MinSamples:  t.cfg.MinSamples,
		Buckets:     buckets,
	}
}

// Restore replaces the tracker state with a persisted snapshot. A
// snapshot of the wrong schema version is rejected as a whole; a
// malformed individual bucket entry is skipped and counted, never fatal.
// Losing a bucket means falling back to the default edge for it, which
// is recoverable; crashing on startup is not.
func (t *Tracker) Restore(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("edge.Restore: snapshot version %d, want %d", snap.Version, SnapshotVersion)
	}

	buckets := make(map[string]*BucketStats, len(snap.Buckets))
	dropped := 0
	for key, stats := range snap.Buckets {
		clean, ok := sanitize(key, stats)
		if !ok {
			dropped++
			continue
		}
		buckets[bucketKey(clean.Bucket, clean.Side)] = clean
	}
	if dropped > 0 {
		slog.Warn("edge.Restore: dropped malformed bucket entries", "count", dropped)
	}

	t.buckets = buckets
	t.totalTrades = snap.TotalTrades
	if !snap.CreatedAt.IsZero() {
		t.createdAt = snap.CreatedAt
	}
	slog.Info("edge tracker restored",
		"total_trades", t.totalTrades,
		"buckets", len(t.buckets),
	)
	return nil
}

// sanitize validates one persisted bucket entry against its key. The key
// carries the same (bucket, side) pair as the value; disagreement or an
// unparseable side means the entry cannot be trusted.
func sanitize(key string, stats BucketStats) (*BucketStats, bool) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 {
		return nil, false
	}
	side, ok := domain.ParseSide(parts[1])
	if !ok || side != stats.Side {
		return nil, false
	}
	if stats.Wins < 0 || stats.Losses < 0 {
		return nil, false
	}
	if Bucket(stats.Bucket) != stats.Bucket {
		return nil, false
	}
	return &BucketStats{
		Bucket:     stats.Bucket,
		Side:       side,
		Wins:       stats.Wins,
		Losses:     stats.Losses,
		FirstTrade: stats.FirstTrade,
		LastTrade:  stats.LastTrade,
	}, true
}
