package domain

import "time"

// HaltRecord es una entrada del log de auditoría del circuit breaker:
// un trip, un reset manual o un auto-reset por cooldown.
type HaltRecord struct {
	Kind              string // "trip" | "manual_reset" | "auto_reset"
	Reason            string
	Message           string
	Timestamp         time.Time
	ConsecutiveLosses int
	SessionPnL        float64
	ElapsedMinutes    float64 // solo en auto_reset
}

// HeartbeatRecord es el snapshot periódico de la sesión que se persiste
// y se muestra en el heartbeat.
type HeartbeatRecord struct {
	Timestamp     time.Time
	Balance       float64
	SessionPnL    float64
	SessionPnLPct float64
	OpenPositions int
	ExposureUSD   float64
	TradesSeen    int
	TradingOpen   bool
	TripReason    string
}
