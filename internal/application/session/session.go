// Package session wires the risk gate, the sizing stack and the edge
// tracker into one trading-session orchestrator. An external signal
// generator proposes candidate trades; the session evaluates, registers
// fills, settles outcomes and persists everything worth keeping.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
	"github.com/alejandrodnm/polyrisk/internal/edge"
	"github.com/alejandrodnm/polyrisk/internal/kelly"
	"github.com/alejandrodnm/polyrisk/internal/ports"
	"github.com/alejandrodnm/polyrisk/internal/risk"
)

// Config holds the session-level knobs.
type Config struct {
	StartingBalance   float64
	HeartbeatInterval time.Duration
}

// Signal is a candidate trade proposed by an external strategy, with the
// raw signal-quality inputs it wants blended into the edge score.
type Signal struct {
	Coin           string
	Side           domain.Side
	EntryPrice     float64
	MarketID       string
	Velocity       float64
	VelocityMax    float64
	MTFConfidence  float64
	BookConfidence float64
	SentimentMult  float64
	VolumeRatio    float64
}

// Decision is the session's verdict on a Signal: either an approved,
// fully sized trade or a rejection with the blocking reason.
type Decision struct {
	Approved    bool
	Reason      string
	SizeUSD     float64
	PositionPct float64
	EdgeScore   float64
	PriceEdge   float64 // tracker estimate for this price/side
	StatsSource string
}

// Settlement is the outcome of a resolved trade fed back into the session.
type Settlement struct {
	PositionID string
	Coin       string
	Side       domain.Side
	EntryPrice float64
	Won        bool
	PnLUSD     float64 // dollars, feeds the circuit breaker
	PnLPct     float64 // fraction of stake, feeds Kelly stats
	EdgeScore  float64
}

// Deps are the collaborators a Session composes.
type Deps struct {
	Risk       *risk.Manager
	Stats      *kelly.StatsManager
	Sizer      *kelly.Sizer
	Tracker    *edge.Tracker
	Weights    kelly.EdgeWeights
	Store      ports.SessionStore
	EdgeState  ports.StateStore
	KellyState ports.StateStore
	Notifier   ports.Notifier
}

// Session owns all mutable risk state for one trading session. Every
// entry point takes the session lock: the sub-systems themselves are not
// safe under concurrent callers, and a race on the loss counters could
// double-trip or miss a trip.
type Session struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps
}

// New assembles a session. Call Restore before the first Evaluate if
// calibration state from a previous run should carry over.
func New(cfg Config, deps Deps) *Session {
	return &Session{cfg: cfg, deps: deps}
}

// Restore reloads persisted calibration state. Corrupt or legacy state
// is logged and skipped: the session starts conservative and
// re-accumulates, it never refuses to start.
func (s *Session) Restore() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var edgeSnap edge.Snapshot
	found, err := s.deps.EdgeState.Load(&edgeSnap)
	switch {
	case err != nil:
		slog.Error("edge state unreadable, starting fresh", "err", err)
	case found:
		if err := s.deps.Tracker.Restore(edgeSnap); err != nil {
			slog.Error("edge state rejected, starting fresh", "err", err)
		}
	}

	var kellySnap kelly.Snapshot
	found, err = s.deps.KellyState.Load(&kellySnap)
	switch {
	case err != nil:
		slog.Error("kelly state unreadable, starting fresh", "err", err)
	case found:
		s.deps.Stats.Restore(kellySnap)
	}
}

// Evaluate runs the full admission pipeline for a candidate trade:
// edge estimation, Kelly sizing, then the risk gate over the sized
// amount. No position is registered here (the caller does that via
// Opened once the exchange confirms the fill), but the gate's cooldown
// poll may auto-reset a halted breaker whose cooldown has elapsed.
func (s *Session) Evaluate(sig Signal) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	priceEdge := s.deps.Tracker.GetEdge(sig.EntryPrice, sig.Side)
	edgeScore := kelly.ComposeEdgeScore(s.deps.Weights,
		sig.Velocity, sig.VelocityMax,
		sig.MTFConfidence, sig.BookConfidence,
		sig.SentimentMult, sig.VolumeRatio,
	)

	bankroll := s.deps.Risk.Breaker().Status().CurrentBalance
	verdict := s.deps.Sizer.Size(sig.Coin, bankroll, edgeScore)
	if !verdict.Allowed {
		return Decision{
			Reason:      fmt.Sprintf("sizing: %s", verdict.Reason),
			EdgeScore:   edgeScore,
			PriceEdge:   priceEdge,
			StatsSource: verdict.StatsSource,
		}
	}

	if ok, reason := s.deps.Risk.PreTradeCheck(sig.Coin, sig.Side, verdict.PositionDollars); !ok {
		return Decision{
			Reason:      reason,
			EdgeScore:   edgeScore,
			PriceEdge:   priceEdge,
			StatsSource: verdict.StatsSource,
		}
	}

	return Decision{
		Approved:    true,
		SizeUSD:     verdict.PositionDollars,
		PositionPct: verdict.PositionPct,
		EdgeScore:   edgeScore,
		PriceEdge:   priceEdge,
		StatsSource: verdict.StatsSource,
	}
}

// Opened registers a confirmed fill and returns the position ID the
// caller needs for settlement.
func (s *Session) Opened(sig Signal, sizeUSD float64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deps.Risk.OnTradeOpened(sig.Coin, sig.Side, sizeUSD, sig.MarketID)
}

// Closed settles a resolved trade: position close and breaker update,
// then the calibration feeds (Kelly stats and edge tracker), then
// persistence. Audit failures are logged, never fatal; losing a DB row
// must not stop a live session.
func (s *Session) Closed(ctx context.Context, st Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deps.Risk.OnTradeClosed(st.PositionID, st.Won, st.PnLUSD, st.Coin)

	s.deps.Stats.RecordTrade(domain.TradeRecord{
		Coin:       st.Coin,
		Side:       st.Side,
		PnLPct:     st.PnLPct,
		EdgeScore:  st.EdgeScore,
		RecordedAt: time.Now().UTC(),
	})
	s.deps.Tracker.RecordResult(st.EntryPrice, st.Side, st.Won)

	if err := s.deps.Store.SaveTrade(ctx, domain.TradeResult{
		Timestamp: time.Now().UTC(),
		Won:       st.Won,
		PnL:       st.PnLUSD,
		Coin:      st.Coin,
		MarketID:  st.PositionID,
	}); err != nil {
		slog.Error("audit trade save failed", "err", err)
	}
	s.flushHalts(ctx)
	s.saveState()
}

// Halt trips the breaker manually and records the audit event.
func (s *Session) Halt(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.Risk.Halt(reason)
	s.flushHalts(ctx)
}

// Resume clears a halt and records the audit event.
func (s *Session) Resume(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deps.Risk.Resume(reason)
	s.flushHalts(ctx)
}

// Heartbeat captures, persists and notifies the periodic snapshot.
func (s *Session) Heartbeat(ctx context.Context) domain.HeartbeatRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	hb := s.deps.Risk.Heartbeat()
	rec := domain.HeartbeatRecord{
		Timestamp:     hb.Timestamp,
		Balance:       hb.Breaker.CurrentBalance,
		SessionPnL:    hb.Breaker.SessionPnL,
		SessionPnLPct: hb.Breaker.SessionLossPct,
		OpenPositions: hb.Exposure.OpenPositions,
		ExposureUSD:   hb.Exposure.TotalExposureUSD,
		TradesSeen:    hb.TradesSeen,
		TradingOpen:   hb.TradingOpen,
		TripReason:    string(hb.Breaker.TripReason),
	}

	if err := s.deps.Store.SaveHeartbeat(ctx, rec); err != nil {
		slog.Error("heartbeat save failed", "err", err)
	}
	if err := s.deps.Notifier.NotifyHeartbeat(ctx, rec); err != nil {
		slog.Error("heartbeat notify failed", "err", err)
	}
	// AllowTrade inside Heartbeat doubles as the cooldown poll, so a
	// halted session resumes on schedule even without new signals.
	s.flushHalts(ctx)
	return rec
}

// Run emits heartbeats on a fixed interval until the context ends, then
// saves calibration state one last time. Trade flow happens on whatever
// goroutine calls Evaluate/Opened/Closed; this loop is only the clock.
func (s *Session) Run(ctx context.Context) error {
	interval := s.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("session started",
		"starting_balance", s.cfg.StartingBalance,
		"heartbeat_interval", interval,
	)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.saveState()
			s.mu.Unlock()
			slog.Info("session stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Heartbeat(ctx)
		}
	}
}

// flushHalts persists and notifies breaker audit events that appeared
// since the last flush. The drain hands each event over exactly once,
// so nothing is lost when the breaker's bounded log truncates. Caller
// holds the lock.
func (s *Session) flushHalts(ctx context.Context) {
	for _, h := range s.deps.Risk.Breaker().DrainNewHalts() {
		if err := s.deps.Store.SaveHalt(ctx, h); err != nil {
			slog.Error("halt save failed", "err", err)
		}
		if err := s.deps.Notifier.NotifyHalt(ctx, h); err != nil {
			slog.Error("halt notify failed", "err", err)
		}
	}
}

// saveState persists both calibration snapshots. Caller holds the lock.
func (s *Session) saveState() {
	if err := s.deps.EdgeState.Save(s.deps.Tracker.Snapshot()); err != nil {
		slog.Error("edge state save failed", "err", err)
	}
	if err := s.deps.KellyState.Save(s.deps.Stats.Snapshot()); err != nil {
		slog.Error("kelly state save failed", "err", err)
	}
}
