package ports

import (
	"context"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// SessionStore persiste el registro de auditoría de una sesión de trading:
// trades resueltos, halts del circuit breaker y heartbeats periódicos.
type SessionStore interface {
	// SaveTrade persiste un trade resuelto.
	SaveTrade(ctx context.Context, t domain.TradeResult) error

	// SaveHalt persiste un evento de trip/reset del circuit breaker.
	SaveHalt(ctx context.Context, h domain.HaltRecord) error

	// SaveHeartbeat persiste el snapshot periódico de la sesión.
	SaveHeartbeat(ctx context.Context, hb domain.HeartbeatRecord) error

	// RecentTrades devuelve los últimos trades registrados, el más
	// reciente primero.
	RecentTrades(ctx context.Context, limit int) ([]domain.TradeResult, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
