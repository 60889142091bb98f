package ports

import (
	"context"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// Notifier presenta los eventos de la sesión al operador.
type Notifier interface {
	// NotifyHalt avisa de un trip o reset del circuit breaker.
	NotifyHalt(ctx context.Context, h domain.HaltRecord) error

	// NotifyHeartbeat muestra el snapshot periódico de la sesión.
	// En la implementación de consola, imprime una tabla formateada.
	NotifyHeartbeat(ctx context.Context, hb domain.HeartbeatRecord) error
}
