package domain

import "time"

// TradeRecord es el resultado de un trade resuelto, tal como lo consumen
// las estadísticas de Kelly. Inmutable una vez registrado.
type TradeRecord struct {
	Coin       string    `json:"coin"`
	Side       Side      `json:"side"`
	PnLPct     float64   `json:"pnl_pct"`    // PnL como fracción del stake (+0.8 = ganaste 80%)
	EdgeScore  float64   `json:"edge_score"` // edge score compuesto en el momento de entrada
	Regime     string    `json:"regime,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// IsWin devuelve true si el trade fue rentable.
func (t TradeRecord) IsWin() bool {
	return t.PnLPct > 0
}

// TradeResult es el resultado de un trade tal como lo consume el circuit
// breaker: dólares, no fracciones.
type TradeResult struct {
	Timestamp time.Time
	Won       bool
	PnL       float64 // positivo = ganancia, negativo = pérdida, en USD
	Coin      string
	MarketID  string
	Note      string
}
