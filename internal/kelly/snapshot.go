package kelly

import (
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// SnapshotVersion is the schema version written by Snapshot.
const SnapshotVersion = 1

// Snapshot is the JSON-serializable state of a StatsManager: the raw
// per-asset and global trade windows. Derived statistics are never
// persisted, they are recomputed from the windows after Restore.
type Snapshot struct {
	Version    int                             `json:"version"`
	SavedAt    time.Time                       `json:"saved_at"`
	WindowSize int                             `json:"window_size"`
	PerAsset   map[string][]domain.TradeRecord `json:"per_asset"`
	Global     []domain.TradeRecord            `json:"global"`
}

// Snapshot captures the current windows for persistence.
func (m *StatsManager) Snapshot() Snapshot {
	perAsset := make(map[string][]domain.TradeRecord, len(m.perAsset))
	for coin, window := range m.perAsset {
		perAsset[coin] = append([]domain.TradeRecord(nil), window...)
	}
	return Snapshot{
		Version:    SnapshotVersion,
		SavedAt:    time.Now().UTC(),
		WindowSize: m.cfg.WindowSize,
		PerAsset:   perAsset,
		Global:     append([]domain.TradeRecord(nil), m.global...),
	}
}

// Restore replaces the current windows with a persisted snapshot,
// re-truncating to this manager's window size in case the config shrank
// between sessions.
func (m *StatsManager) Restore(snap Snapshot) {
	m.perAsset = make(map[string][]domain.TradeRecord, len(snap.PerAsset))
	for coin, window := range snap.PerAsset {
		m.perAsset[coin] = truncate(window, m.cfg.WindowSize)
	}
	m.global = truncate(snap.Global, m.cfg.WindowSize)
}

func truncate(window []domain.TradeRecord, limit int) []domain.TradeRecord {
	out := append([]domain.TradeRecord(nil), window...)
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
