package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyrisk/internal/domain"
)

// Console implementa ports.Notifier escribiendo a un io.Writer.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// NotifyHalt imprime un evento de trip/reset del circuit breaker.
func (c *Console) NotifyHalt(_ context.Context, h domain.HaltRecord) error {
	ts := h.Timestamp.Format("15:04:05")
	switch h.Kind {
	case "trip":
		fmt.Fprintf(c.out, "[%s] ⛔ HALT [%s] %s | streak=%d pnl=$%+.2f\n",
			ts, h.Reason, h.Message, h.ConsecutiveLosses, h.SessionPnL)
	case "auto_reset":
		fmt.Fprintf(c.out, "[%s] ▶ auto-reset tras cooldown (%.0f min) | pnl=$%+.2f\n",
			ts, h.ElapsedMinutes, h.SessionPnL)
	default:
		fmt.Fprintf(c.out, "[%s] ▶ reset manual: %s | pnl=$%+.2f\n",
			ts, h.Message, h.SessionPnL)
	}
	return nil
}

// NotifyHeartbeat imprime el snapshot compacto de la sesión en una línea.
func (c *Console) NotifyHeartbeat(_ context.Context, hb domain.HeartbeatRecord) error {
	state := "TRADING"
	if !hb.TradingOpen {
		state = fmt.Sprintf("HALTED[%s]", hb.TripReason)
	}
	fmt.Fprintf(c.out, "[%s] %s bal=$%.2f pnl=$%+.2f (%+.1f%%) open=%d exp=$%.2f trades=%d\n",
		hb.Timestamp.Format("15:04:05"), state,
		hb.Balance, hb.SessionPnL, hb.SessionPnLPct*100,
		hb.OpenPositions, hb.ExposureUSD, hb.TradesSeen)
	return nil
}

// PositionRow es una fila del reporte de exposición.
type PositionRow struct {
	ID       string
	Coin     string
	Group    string
	Side     domain.Side
	SizeUSD  float64
	OpenedAt time.Time
}

// RiskReportInput agrupa los datos para el reporte de riesgo completo.
type RiskReportInput struct {
	PortfolioValue   float64
	TotalExposureUSD float64
	TotalExposurePct float64
	SessionPnL       float64
	Tripped          bool
	TripReason       string
	Positions        []PositionRow
}

// PrintRiskReport imprime el estado de exposición con una tabla de
// posiciones abiertas.
func (c *Console) PrintRiskReport(in RiskReportInput) {
	fmt.Fprintf(c.out, "\n── Risk Report ──\n")
	fmt.Fprintf(c.out, "  Portfolio:  $%.2f\n", in.PortfolioValue)
	fmt.Fprintf(c.out, "  Exposure:   $%.2f (%.1f%%)\n", in.TotalExposureUSD, in.TotalExposurePct*100)
	fmt.Fprintf(c.out, "  Session:    $%+.2f\n", in.SessionPnL)
	if in.Tripped {
		fmt.Fprintf(c.out, "  Breaker:    TRIPPED [%s]\n", in.TripReason)
	} else {
		fmt.Fprintf(c.out, "  Breaker:    ok\n")
	}

	if len(in.Positions) == 0 {
		fmt.Fprintln(c.out, "  (no open positions)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Coin", "Group", "Side", "Size$", "Opened")
	for _, p := range in.Positions {
		table.Append(
			p.ID,
			p.Coin,
			p.Group,
			string(p.Side),
			fmt.Sprintf("%.2f", p.SizeUSD),
			p.OpenedAt.Format("15:04:05"),
		)
	}
	table.Render()
}

// CalibrationRow es una fila del reporte de calibración del edge tracker.
type CalibrationRow struct {
	Bucket         float64
	Side           domain.Side
	Wins           int
	Losses         int
	WinRate        float64
	CalibratedEdge float64
	Confidence     float64
	IsCalibrated   bool
	SamplesNeeded  int
}

// PrintCalibrationReport imprime el estado de calibración por bucket.
// Útil para entender cuántos datos reales hay detrás de cada estimación.
func (c *Console) PrintCalibrationReport(totalTrades int, rows []CalibrationRow) {
	fmt.Fprintf(c.out, "\n── Edge Calibration Report ──\n")
	fmt.Fprintf(c.out, "  Total trades recorded: %d\n", totalTrades)
	fmt.Fprintf(c.out, "  Buckets with data:     %d\n", len(rows))

	if len(rows) == 0 {
		fmt.Fprintln(c.out, "  (sin trades — todos los buckets devuelven el edge por defecto)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Bucket", "Side", "W", "L", "WR", "Edge", "Conf", "Status")
	for _, r := range rows {
		status := "calibrated"
		if !r.IsCalibrated {
			status = fmt.Sprintf("need %d", r.SamplesNeeded)
		}
		wr := "-"
		if r.Wins+r.Losses > 0 {
			wr = fmt.Sprintf("%.1f%%", r.WinRate*100)
		}
		table.Append(
			fmt.Sprintf("%.2f", r.Bucket),
			string(r.Side),
			fmt.Sprintf("%d", r.Wins),
			fmt.Sprintf("%d", r.Losses),
			wr,
			fmt.Sprintf("%+.2f%%", r.CalibratedEdge*100),
			fmt.Sprintf("%.0f%%", r.Confidence*100),
			status,
		)
	}
	table.Render()
}
