package domain

import "time"

// Position es una posición confirmada por el exchange — no una reserva.
// Se crea cuando el fill está confirmado y solo la mutan ClosePosition /
// CloseByCoin en el limiter.
type Position struct {
	ID       string
	Coin     string
	Group    string // grupo de correlación, derivado del mapa estático
	Side     Side
	SizeUSD  float64
	MarketID string // referencia opaca al mercado externo
	OpenedAt time.Time
	ClosedAt *time.Time
	PnL      *float64
}

// IsOpen devuelve true si la posición sigue abierta.
// Una posición está abierta sii su timestamp de cierre no está seteado.
func (p Position) IsOpen() bool {
	return p.ClosedAt == nil
}
