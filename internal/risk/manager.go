package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// Heartbeat combines both sub-systems' snapshots. Emitted on a fixed
// interval by the caller; the manager itself runs no timer.
type Heartbeat struct {
	Timestamp   time.Time
	Breaker     BreakerStatus
	Exposure    LimiterStatus
	TradesSeen  int
	TradingOpen bool
}

// Manager composes one CircuitBreaker and one CorrelationLimiter sharing
// the same portfolio baseline. It owns no rule logic of its own, only the
// sequencing between the two: the breaker is always consulted first, and
// post-settlement the limiter's portfolio value is refreshed from the
// breaker's updated session PnL.
//
// Lifecycle is one trading session: construct with the starting balance,
// discard at session end.
type Manager struct {
	breaker    *CircuitBreaker
	limiter    *CorrelationLimiter
	tradesSeen int
}

// NewManager builds the pre/post-trade gate for one session.
func NewManager(startingBalance float64, bcfg BreakerConfig, lcfg LimiterConfig, groups domain.GroupMap) *Manager {
	return &Manager{
		breaker: NewCircuitBreaker(startingBalance, bcfg),
		limiter: NewCorrelationLimiter(startingBalance, lcfg, groups),
	}
}

// PreTradeCheck is the single admission gate for a candidate trade. The
// breaker is checked first: a global halt takes priority over exposure
// nuance, so a tripped breaker short-circuits without querying the
// limiter at all.
func (m *Manager) PreTradeCheck(coin string, side domain.Side, sizeUSD float64) (bool, string) {
	if ok, reason := m.breaker.AllowTrade(); !ok {
		return false, fmt.Sprintf("breaker: %s", reason)
	}
	if ok, reason := m.limiter.CanEnter(coin, side, sizeUSD); !ok {
		return false, fmt.Sprintf("correlation: %s", reason)
	}
	return true, "OK"
}

// OnTradeOpened registers a confirmed fill with the limiter and returns
// the position ID. The breaker only cares about outcomes, not entries.
func (m *Manager) OnTradeOpened(coin string, side domain.Side, sizeUSD float64, marketID string) string {
	pos := m.limiter.OpenPosition(coin, side, sizeUSD, marketID)
	return pos.ID
}

// OnTradeClosed settles a resolved trade: close the position (falling back
// to coin lookup if the ID misses), record the outcome with the breaker,
// then refresh the limiter's portfolio baseline from the breaker's updated
// balance. The order matters: exposure percentages after this call reflect
// the post-settlement balance.
func (m *Manager) OnTradeClosed(positionID string, won bool, pnl float64, coin string) {
	if pos := m.limiter.ClosePosition(positionID, pnl); pos == nil && coin != "" {
		m.limiter.CloseByCoin(coin, pnl)
	}
	m.breaker.RecordTrade(won, pnl, coin, "", positionID)
	m.tradesSeen++

	st := m.breaker.Status()
	m.limiter.UpdatePortfolioValue(st.CurrentBalance)
}

// Halt trips the breaker manually. Manual halts never auto-expire.
func (m *Manager) Halt(reason string) {
	slog.Warn("manual trading halt", "reason", reason)
	m.breaker.RecordManualHalt(reason)
}

// Resume clears a halt via the breaker's reset. Session PnL is preserved.
func (m *Manager) Resume(reason string) {
	m.breaker.Reset(reason)
}

// Heartbeat returns the periodic combined snapshot.
func (m *Manager) Heartbeat() Heartbeat {
	allowed, _ := m.breaker.AllowTrade()
	return Heartbeat{
		Timestamp:   time.Now().UTC(),
		Breaker:     m.breaker.Status(),
		Exposure:    m.limiter.Status(),
		TradesSeen:  m.tradesSeen,
		TradingOpen: allowed,
	}
}

// Breaker exposes the underlying circuit breaker for reporting.
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// Limiter exposes the underlying correlation limiter for reporting.
func (m *Manager) Limiter() *CorrelationLimiter { return m.limiter }
