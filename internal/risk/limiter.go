package risk

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// LimiterConfig holds the exposure caps enforced by the CorrelationLimiter.
type LimiterConfig struct {
	MaxCorrelatedPositions int     // max open positions in one group
	MaxGroupExposurePct    float64 // max fraction of portfolio in one group
	MaxTotalExposurePct    float64 // max fraction of portfolio open at once
	MaxSameDirection       int     // max positions all YES or all NO
	MaxSinglePositionPct   float64 // max fraction of portfolio per trade
}

// DefaultLimiterConfig returns the exposure caps used in production.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxCorrelatedPositions: 2,
		MaxGroupExposurePct:    0.10,
		MaxTotalExposurePct:    0.15,
		MaxSameDirection:       3,
		MaxSinglePositionPct:   0.05,
	}
}

// GroupSummary aggregates the open positions of one correlation group.
type GroupSummary struct {
	Count    int
	Coins    []string
	Sides    []domain.Side
	Exposure float64
}

// LimiterStatus is a snapshot of current exposure.
type LimiterStatus struct {
	OpenPositions    int
	TotalExposureUSD float64
	TotalExposurePct float64
	PortfolioValue   float64
	Positions        []domain.Position
	GroupSummary     map[string]GroupSummary
	ClosedCount      int
}

// CorrelationLimiter tracks open positions and blocks entries that would
// concentrate risk in correlated assets. Coins in the same group are
// treated as one underlying risk factor. One instance per session,
// shared across all coins.
type CorrelationLimiter struct {
	portfolioValue float64
	cfg            LimiterConfig
	groups         domain.GroupMap

	open   map[string]*domain.Position
	closed []domain.Position
}

// NewCorrelationLimiter creates a limiter over the given group map. A nil
// map puts every coin in the "unknown" group, still subject to all caps.
func NewCorrelationLimiter(portfolioValue float64, cfg LimiterConfig, groups domain.GroupMap) *CorrelationLimiter {
	def := DefaultLimiterConfig()
	if cfg.MaxCorrelatedPositions <= 0 {
		cfg.MaxCorrelatedPositions = def.MaxCorrelatedPositions
	}
	if cfg.MaxGroupExposurePct <= 0 {
		cfg.MaxGroupExposurePct = def.MaxGroupExposurePct
	}
	if cfg.MaxTotalExposurePct <= 0 {
		cfg.MaxTotalExposurePct = def.MaxTotalExposurePct
	}
	if cfg.MaxSameDirection <= 0 {
		cfg.MaxSameDirection = def.MaxSameDirection
	}
	if cfg.MaxSinglePositionPct <= 0 {
		cfg.MaxSinglePositionPct = def.MaxSinglePositionPct
	}
	if groups == nil {
		groups = domain.GroupMap{}
	}
	return &CorrelationLimiter{
		portfolioValue: portfolioValue,
		cfg:            cfg,
		groups:         groups,
		open:           make(map[string]*domain.Position),
	}
}

// UpdatePortfolioValue refreshes the baseline for all percentage checks.
// Call after every settled trade, otherwise exposure percentages go stale.
func (cl *CorrelationLimiter) UpdatePortfolioValue(newValue float64) {
	cl.portfolioValue = newValue
}

// CanEnter checks all correlation rules for a candidate entry. Pure read,
// no side effects. Checks run in a fixed order and the first failure wins.
// Call before placing any order.
func (cl *CorrelationLimiter) CanEnter(coin string, side domain.Side, sizeUSD float64) (bool, string) {
	cfg := cl.cfg
	group := cl.groups.GroupFor(coin)
	open := cl.openPositions()

	// 1. Per-position size cap.
	singlePct := cl.pct(sizeUSD)
	if singlePct > cfg.MaxSinglePositionPct {
		return false, fmt.Sprintf(
			"position size $%.2f = %.1f%% exceeds max single position %.1f%%",
			sizeUSD, singlePct*100, cfg.MaxSinglePositionPct*100)
	}

	// 2. Total exposure cap.
	currentExposure := 0.0
	for _, p := range open {
		currentExposure += p.SizeUSD
	}
	newTotal := currentExposure + sizeUSD
	if cl.pct(newTotal) > cfg.MaxTotalExposurePct {
		return false, fmt.Sprintf(
			"total exposure would be $%.2f = %.1f%% (max=%.1f%%) | current open: $%.2f",
			newTotal, cl.pct(newTotal)*100, cfg.MaxTotalExposurePct*100, currentExposure)
	}

	// 3. Correlated position count.
	var groupCoins []string
	groupExposure := 0.0
	for _, p := range open {
		if p.Group == group {
			groupCoins = append(groupCoins, p.Coin)
			groupExposure += p.SizeUSD
		}
	}
	if len(groupCoins) >= cfg.MaxCorrelatedPositions {
		sort.Strings(groupCoins)
		return false, fmt.Sprintf(
			"group %q already has %d open positions [%s] (max=%d), correlated coins add no diversification",
			group, len(groupCoins), strings.Join(groupCoins, " "), cfg.MaxCorrelatedPositions)
	}

	// 4. Group exposure cap.
	newGroup := groupExposure + sizeUSD
	if cl.pct(newGroup) > cfg.MaxGroupExposurePct {
		return false, fmt.Sprintf(
			"group %q exposure would be $%.2f = %.1f%% (max=%.1f%%)",
			group, newGroup, cl.pct(newGroup)*100, cfg.MaxGroupExposurePct*100)
	}

	// 5. Same-direction concentration.
	sameSide := 0
	for _, p := range open {
		if p.Side == side {
			sameSide++
		}
	}
	if sameSide >= cfg.MaxSameDirection {
		return false, fmt.Sprintf(
			"already %d open %s positions (max=%d), an all-%s book is one-directional macro risk",
			sameSide, side, cfg.MaxSameDirection, side)
	}

	// 6. No doubling up on the same coin.
	key := strings.ToUpper(coin)
	for _, p := range open {
		if p.Coin == key {
			return false, fmt.Sprintf(
				"already an open %s position in %s, close it before re-entering",
				p.Side, key)
		}
	}

	return true, "OK"
}

// OpenPosition records a confirmed fill. It does NOT re-check CanEnter;
// the caller validates first. Returns the position so its ID can be kept
// for later closing.
func (cl *CorrelationLimiter) OpenPosition(coin string, side domain.Side, sizeUSD float64, marketID string) *domain.Position {
	key := strings.ToUpper(coin)
	pos := &domain.Position{
		ID:       uuid.NewString()[:8],
		Coin:     key,
		Group:    cl.groups.GroupFor(key),
		Side:     side,
		SizeUSD:  sizeUSD,
		MarketID: marketID,
		OpenedAt: time.Now().UTC(),
	}
	cl.open[pos.ID] = pos
	slog.Info("position OPENED",
		"id", pos.ID,
		"coin", key,
		"side", side,
		"size_usd", sizeUSD,
		"group", pos.Group,
		"open_count", len(cl.open),
	)
	return pos
}

// ClosePosition marks a position closed with its realized PnL. Returns nil
// if the ID is unknown; that is a normal outcome, not an error.
func (cl *CorrelationLimiter) ClosePosition(positionID string, pnl float64) *domain.Position {
	pos, ok := cl.open[positionID]
	if !ok {
		slog.Warn("ClosePosition: id not found", "id", positionID)
		return nil
	}
	now := time.Now().UTC()
	pos.ClosedAt = &now
	pos.PnL = &pnl
	delete(cl.open, positionID)
	cl.closed = append(cl.closed, *pos)
	slog.Info("position CLOSED",
		"id", pos.ID,
		"coin", pos.Coin,
		"side", pos.Side,
		"pnl", pnl,
		"open_count", len(cl.open),
	)
	return pos
}

// CloseByCoin closes the open position for a coin. At most one exists per
// the no-duplicate rule.
func (cl *CorrelationLimiter) CloseByCoin(coin string, pnl float64) *domain.Position {
	key := strings.ToUpper(coin)
	for id, p := range cl.open {
		if p.Coin == key {
			return cl.ClosePosition(id, pnl)
		}
	}
	slog.Warn("CloseByCoin: no open position", "coin", key)
	return nil
}

// OpenCount returns the number of currently open positions.
func (cl *CorrelationLimiter) OpenCount() int {
	return len(cl.open)
}

// Status returns a snapshot of current exposure, broken down per group.
func (cl *CorrelationLimiter) Status() LimiterStatus {
	open := cl.openPositions()
	total := 0.0
	positions := make([]domain.Position, 0, len(open))
	summary := make(map[string]GroupSummary)
	for _, p := range open {
		total += p.SizeUSD
		positions = append(positions, *p)
		gs := summary[p.Group]
		gs.Count++
		gs.Coins = append(gs.Coins, p.Coin)
		gs.Sides = append(gs.Sides, p.Side)
		gs.Exposure += p.SizeUSD
		summary[p.Group] = gs
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OpenedAt.Before(positions[j].OpenedAt)
	})
	return LimiterStatus{
		OpenPositions:    len(open),
		TotalExposureUSD: total,
		TotalExposurePct: cl.pct(total),
		PortfolioValue:   cl.portfolioValue,
		Positions:        positions,
		GroupSummary:     summary,
		ClosedCount:      len(cl.closed),
	}
}

// RiskReport renders a plain-text exposure summary for logs and heartbeats.
func (cl *CorrelationLimiter) RiskReport() string {
	s := cl.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "correlation risk: portfolio=$%.2f exposure=$%.2f (%.1f%%, limit=%.0f%%) open=%d",
		s.PortfolioValue, s.TotalExposureUSD, s.TotalExposurePct*100,
		cl.cfg.MaxTotalExposurePct*100, s.OpenPositions)
	groups := make([]string, 0, len(s.GroupSummary))
	for g := range s.GroupSummary {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		gs := s.GroupSummary[g]
		fmt.Fprintf(&b, " | %s: %s $%.2f", g, strings.Join(gs.Coins, "+"), gs.Exposure)
	}
	return b.String()
}

func (cl *CorrelationLimiter) pct(amount float64) float64 {
	if cl.portfolioValue <= 0 {
		return 0
	}
	return amount / cl.portfolioValue
}

func (cl *CorrelationLimiter) openPositions() []*domain.Position {
	out := make([]*domain.Position, 0, len(cl.open))
	for _, p := range cl.open {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
