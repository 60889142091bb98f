package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// TripReason identifies which condition tripped the circuit breaker.
type TripReason string

const (
	TripConsecutiveLosses TripReason = "consecutive_losses"
	TripSessionDrawdown   TripReason = "session_drawdown"
	TripSingleLoss        TripReason = "single_loss_too_large"
	TripManual            TripReason = "manual_halt"
)

// maxHistory bounds the trade and halt audit logs kept in memory.
const maxHistory = 200

// BreakerConfig holds the trip and warning thresholds. Every value is
// independently tunable; zero values are filled by DefaultBreakerConfig.
type BreakerConfig struct {
	MaxConsecutiveLosses  int           // halt after N losses in a row
	Cooldown              time.Duration // auto-resume window for non-manual trips
	MaxSessionLossPct     float64       // halt if session down more than this fraction
	MaxSingleLossPct      float64       // halt if one trade loses more than this fraction
	WarnConsecutiveLosses int           // log a warning, never blocks
	WarnSessionLossPct    float64       // log a warning, never blocks
}

// DefaultBreakerConfig returns the thresholds used in production.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxConsecutiveLosses:  3,
		Cooldown:              30 * time.Minute,
		MaxSessionLossPct:     0.05,
		MaxSingleLossPct:      0.03,
		WarnConsecutiveLosses: 2,
		WarnSessionLossPct:    0.03,
	}
}

// BreakerStatus is a point-in-time snapshot of the breaker state.
type BreakerStatus struct {
	Tripped           bool
	TripReason        TripReason
	TripMessage       string
	TripTime          time.Time
	ConsecutiveLosses int
	SessionPnL        float64
	SessionLossPct    float64
	StartingBalance   float64
	CurrentBalance    float64
	TotalTrades       int
	WinRate           float64
	HaltCount         int
}

// CircuitBreaker halts trading on abnormal loss patterns. One instance per
// trading session; the single source of truth for "can the bot trade now".
//
// Cooldown expiry is polling-based: AllowTrade checks the wall clock and
// auto-resets if the cooldown has elapsed. A breaker that is never polled
// stays tripped — there is no background timer.
type CircuitBreaker struct {
	startingBalance float64
	cfg             BreakerConfig

	tripped     bool
	tripReason  TripReason
	tripTime    time.Time
	tripMessage string

	consecutiveLosses int
	sessionPnL        float64
	trades            []domain.TradeResult
	halts             []domain.HaltRecord
	pendingHalts      []domain.HaltRecord // not yet handed over via DrainNewHalts
}

// NewCircuitBreaker creates a breaker for a fresh session.
func NewCircuitBreaker(startingBalance float64, cfg BreakerConfig) *CircuitBreaker {
	def := DefaultBreakerConfig()
	if cfg.MaxConsecutiveLosses <= 0 {
		cfg.MaxConsecutiveLosses = def.MaxConsecutiveLosses
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MaxSessionLossPct <= 0 {
		cfg.MaxSessionLossPct = def.MaxSessionLossPct
	}
	if cfg.MaxSingleLossPct <= 0 {
		cfg.MaxSingleLossPct = def.MaxSingleLossPct
	}
	if cfg.WarnConsecutiveLosses <= 0 {
		cfg.WarnConsecutiveLosses = def.WarnConsecutiveLosses
	}
	if cfg.WarnSessionLossPct <= 0 {
		cfg.WarnSessionLossPct = def.WarnSessionLossPct
	}
	return &CircuitBreaker{startingBalance: startingBalance, cfg: cfg}
}

// AllowTrade reports whether a new entry is allowed. Call before every
// trade. If tripped by a non-manual reason and the cooldown has elapsed,
// the breaker auto-resets and allows the trade. Manual trips never expire.
//
// No side effects beyond the possible auto-reset; this never records an
// outcome.
func (cb *CircuitBreaker) AllowTrade() (bool, string) {
	if !cb.tripped {
		return true, "OK"
	}

	if cb.tripReason != TripManual && !cb.tripTime.IsZero() {
		elapsed := time.Since(cb.tripTime).Minutes()
		if elapsed >= cb.cfg.Cooldown.Minutes() {
			cb.autoReset(elapsed)
			return true, "OK"
		}
	}

	msg := fmt.Sprintf("circuit breaker TRIPPED [%s]: %s | tripped at %s",
		cb.tripReason, cb.tripMessage, cb.tripTime.Format("15:04:05"))
	return false, msg
}

// RecordTrade records a resolved trade. Call after every win or loss.
// On a loss it evaluates the trip conditions in fixed priority order:
// single-loss-too-large, then consecutive losses, then session drawdown.
// Warnings are checked first and never short-circuit anything.
func (cb *CircuitBreaker) RecordTrade(won bool, pnl float64, coin, marketID, note string) {
	cb.trades = append(cb.trades, domain.TradeResult{
		Timestamp: time.Now().UTC(),
		Won:       won,
		PnL:       pnl,
		Coin:      coin,
		MarketID:  marketID,
		Note:      note,
	})
	if len(cb.trades) > maxHistory {
		cb.trades = cb.trades[len(cb.trades)-maxHistory:]
	}
	cb.sessionPnL += pnl

	if won {
		cb.consecutiveLosses = 0
		slog.Info("trade WIN", "pnl", pnl, "session_pct", cb.sessionLossPct(), "streak", 0)
		return
	}

	cb.consecutiveLosses++
	slog.Warn("trade LOSS",
		"pnl", pnl,
		"session_pct", cb.sessionLossPct(),
		"streak", cb.consecutiveLosses,
	)
	cb.checkTrips(pnl)
}

// RecordManualHalt force-halts the session from operator or external code.
// A no-op if already tripped — the first reason wins.
func (cb *CircuitBreaker) RecordManualHalt(reason string) {
	if reason == "" {
		reason = "manual halt requested"
	}
	cb.trip(TripManual, reason)
}

// Reset clears the tripped state and the consecutive-loss streak.
// It deliberately does NOT reset session PnL: the drawdown happened,
// resuming does not erase it. Only a new session zeroes it.
func (cb *CircuitBreaker) Reset(reason string) {
	slog.Info("circuit breaker RESET by operator", "reason", reason, "session_pnl", cb.sessionPnL)
	cb.tripped = false
	cb.tripReason = ""
	cb.tripTime = time.Time{}
	cb.tripMessage = ""
	cb.consecutiveLosses = 0
	cb.appendHalt(domain.HaltRecord{
		Kind:       "manual_reset",
		Message:    reason,
		Timestamp:  time.Now().UTC(),
		SessionPnL: cb.sessionPnL,
	})
}

// IsTripped reports whether the breaker is currently tripped.
func (cb *CircuitBreaker) IsTripped() bool {
	return cb.tripped
}

// Status returns a full snapshot for heartbeats and persistence.
func (cb *CircuitBreaker) Status() BreakerStatus {
	wins := 0
	for _, t := range cb.trades {
		if t.Won {
			wins++
		}
	}
	winRate := 0.0
	if len(cb.trades) > 0 {
		winRate = float64(wins) / float64(len(cb.trades))
	}
	return BreakerStatus{
		Tripped:           cb.tripped,
		TripReason:        cb.tripReason,
		TripMessage:       cb.tripMessage,
		TripTime:          cb.tripTime,
		ConsecutiveLosses: cb.consecutiveLosses,
		SessionPnL:        cb.sessionPnL,
		SessionLossPct:    cb.sessionLossPct(),
		StartingBalance:   cb.startingBalance,
		CurrentBalance:    cb.startingBalance + cb.sessionPnL,
		TotalTrades:       len(cb.trades),
		WinRate:           winRate,
		HaltCount:         len(cb.halts),
	}
}

// RecentTrades returns the last n recorded trades, most recent last.
func (cb *CircuitBreaker) RecentTrades(n int) []domain.TradeResult {
	if n <= 0 || n > len(cb.trades) {
		n = len(cb.trades)
	}
	out := make([]domain.TradeResult, n)
	copy(out, cb.trades[len(cb.trades)-n:])
	return out
}

// Halts returns a copy of the halt/resume audit log.
func (cb *CircuitBreaker) Halts() []domain.HaltRecord {
	out := make([]domain.HaltRecord, len(cb.halts))
	copy(out, cb.halts)
	return out
}

// DrainNewHalts hands over the halt/resume events recorded since the last
// drain, exactly once. Unlike Halts, which truncates to maxHistory, the
// pending queue never drops events, so a caller persisting the audit
// trail sees every trip and reset no matter how long the session runs.
func (cb *CircuitBreaker) DrainNewHalts() []domain.HaltRecord {
	out := cb.pendingHalts
	cb.pendingHalts = nil
	return out
}

// sessionLossPct is the session PnL as a fraction of the starting balance.
// Negative when losing.
func (cb *CircuitBreaker) sessionLossPct() float64 {
	if cb.startingBalance == 0 {
		return 0
	}
	return cb.sessionPnL / cb.startingBalance
}

// checkTrips runs warnings, then the trip conditions in priority order.
// Once tripped, later conditions are not evaluated.
func (cb *CircuitBreaker) checkTrips(lastPnL float64) {
	cfg := cb.cfg

	// Warnings: alert only, never halt, never short-circuit.
	if cb.consecutiveLosses >= cfg.WarnConsecutiveLosses {
		slog.Warn("approaching circuit breaker", "consecutive_losses", cb.consecutiveLosses)
	}
	if cb.sessionLossPct() <= -cfg.WarnSessionLossPct {
		slog.Warn("approaching drawdown limit", "session_loss_pct", cb.sessionLossPct())
	}

	if cb.startingBalance > 0 {
		singleLossPct := -lastPnL / cb.startingBalance
		if singleLossPct >= cfg.MaxSingleLossPct {
			cb.trip(TripSingleLoss, fmt.Sprintf(
				"single trade loss $%.2f = %.1f%% of balance (max=%.1f%%)",
				-lastPnL, singleLossPct*100, cfg.MaxSingleLossPct*100))
			return
		}
	}

	if cb.consecutiveLosses >= cfg.MaxConsecutiveLosses {
		cb.trip(TripConsecutiveLosses, fmt.Sprintf(
			"%d consecutive losses (max=%d)",
			cb.consecutiveLosses, cfg.MaxConsecutiveLosses))
		return
	}

	if cb.sessionLossPct() <= -cfg.MaxSessionLossPct {
		cb.trip(TripSessionDrawdown, fmt.Sprintf(
			"session loss %.1f%% (max=%.1f%%) | $%.2f lost from $%.2f",
			-cb.sessionLossPct()*100, cfg.MaxSessionLossPct*100,
			-cb.sessionPnL, cb.startingBalance))
	}
}

// trip sets the tripped state. A no-op if already tripped: the reason set
// on the first trigger is never overwritten until an explicit reset.
func (cb *CircuitBreaker) trip(reason TripReason, message string) {
	if cb.tripped {
		return
	}
	cb.tripped = true
	cb.tripReason = reason
	cb.tripTime = time.Now().UTC()
	cb.tripMessage = message
	cb.appendHalt(domain.HaltRecord{
		Kind:              "trip",
		Reason:            string(reason),
		Message:           message,
		Timestamp:         cb.tripTime,
		ConsecutiveLosses: cb.consecutiveLosses,
		SessionPnL:        cb.sessionPnL,
	})
	slog.Error("CIRCUIT BREAKER TRIPPED", "reason", reason, "message", message)
}

func (cb *CircuitBreaker) autoReset(elapsedMinutes float64) {
	slog.Info("circuit breaker auto-reset after cooldown", "elapsed_minutes", elapsedMinutes)
	cb.tripped = false
	cb.tripReason = ""
	cb.tripTime = time.Time{}
	cb.tripMessage = ""
	cb.consecutiveLosses = 0
	cb.appendHalt(domain.HaltRecord{
		Kind:           "auto_reset",
		Timestamp:      time.Now().UTC(),
		ElapsedMinutes: elapsedMinutes,
		SessionPnL:     cb.sessionPnL,
	})
}

func (cb *CircuitBreaker) appendHalt(ev domain.HaltRecord) {
	cb.halts = append(cb.halts, ev)
	if len(cb.halts) > maxHistory {
		cb.halts = cb.halts[len(cb.halts)-maxHistory:]
	}
	cb.pendingHalts = append(cb.pendingHalts, ev)
}
