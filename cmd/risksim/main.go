package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polyrisk/config"
	"github.com/alejandrodnm/polyrisk/internal/adapters/notify"
	"github.com/alejandrodnm/polyrisk/internal/adapters/storage"
	"github.com/alejandrodnm/polyrisk/internal/application/session"
	"github.com/alejandrodnm/polyrisk/internal/domain"
	"github.com/alejandrodnm/polyrisk/internal/edge"
	"github.com/alejandrodnm/polyrisk/internal/kelly"
	"github.com/alejandrodnm/polyrisk/internal/risk"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	trades := flag.Int("trades", 200, "number of synthetic signals to feed")
	seed := flag.Int64("seed", 42, "RNG seed for the synthetic stream")
	perSec := flag.Float64("rate", 10, "signals per second")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("config not loaded, using defaults", "err", err, "path", *configPath)
		cfg = config.Default()
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("polyrisk simulator starting",
		"config", *configPath,
		"balance", cfg.Session.StartingBalance,
		"trades", *trades,
		"seed", *seed,
		"rate", *perSec,
	)

	store, err := storage.NewSQLiteSessionStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole()
	groups := domain.BuildGroupMap(cfg.Correlation.Groups)
	stats := kelly.NewStatsManager(statsConfig(cfg))
	tracker := edge.NewTracker(edgeConfig(cfg))
	mgr := risk.NewManager(cfg.Session.StartingBalance, breakerConfig(cfg), limiterConfig(cfg), groups)

	sess := session.New(
		session.Config{
			StartingBalance:   cfg.Session.StartingBalance,
			HeartbeatInterval: cfg.HeartbeatInterval(),
		},
		session.Deps{
			Risk:       mgr,
			Stats:      stats,
			Sizer:      kelly.NewSizer(sizerConfig(cfg), stats),
			Tracker:    tracker,
			Weights:    edgeWeights(cfg),
			Store:      store,
			EdgeState:  storage.NewJSONStateStore(cfg.Storage.EdgeStatePath),
			KellyState: storage.NewJSONStateStore(cfg.Storage.KellyStatePath),
			Notifier:   notifier,
		},
	)
	sess.Restore()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sim := newSimulator(sess, groups, simParams{
		Trades:  *trades,
		Seed:    *seed,
		PerSec:  *perSec,
		MaxEdge: cfg.Edge.MaxEdge,
	})
	summary, err := sim.run(ctx)
	if err != nil {
		slog.Warn("simulation interrupted", "err", err)
	}

	hb := sess.Heartbeat(ctx)
	printReports(notifier, mgr, tracker)

	slog.Info("polyrisk simulator stopped",
		"signals", summary.Signals,
		"approved", summary.Approved,
		"rejected", summary.Rejected,
		"final_balance", hb.Balance,
	)
}

// printReports vuelca el estado final de exposición, breaker y calibración.
func printReports(notifier *notify.Console, mgr *risk.Manager, tracker *edge.Tracker) {
	bst := mgr.Breaker().Status()
	lst := mgr.Limiter().Status()

	rows := make([]notify.PositionRow, 0, len(lst.Positions))
	for _, p := range lst.Positions {
		rows = append(rows, notify.PositionRow{
			ID:       p.ID,
			Coin:     p.Coin,
			Group:    p.Group,
			Side:     p.Side,
			SizeUSD:  p.SizeUSD,
			OpenedAt: p.OpenedAt,
		})
	}
	notifier.PrintRiskReport(notify.RiskReportInput{
		PortfolioValue:   lst.PortfolioValue,
		TotalExposureUSD: lst.TotalExposureUSD,
		TotalExposurePct: lst.TotalExposurePct,
		SessionPnL:       bst.SessionPnL,
		Tripped:          bst.Tripped,
		TripReason:       string(bst.TripReason),
		Positions:        rows,
	})

	calRows := make([]notify.CalibrationRow, 0)
	for _, st := range tracker.AllStats() {
		calRows = append(calRows, notify.CalibrationRow{
			Bucket:         st.Bucket,
			Side:           st.Side,
			Wins:           st.Wins,
			Losses:         st.Losses,
			WinRate:        st.WinRate,
			CalibratedEdge: st.CalibratedEdge,
			Confidence:     st.Confidence,
			IsCalibrated:   st.IsCalibrated,
			SamplesNeeded:  st.SamplesNeeded,
		})
	}
	notifier.PrintCalibrationReport(tracker.TotalTrades(), calRows)
}

func breakerConfig(cfg *config.Config) risk.BreakerConfig {
	return risk.BreakerConfig{
		MaxConsecutiveLosses:  cfg.Breaker.MaxConsecutiveLosses,
		Cooldown:              cfg.Cooldown(),
		MaxSessionLossPct:     cfg.Breaker.MaxSessionLossPct,
		MaxSingleLossPct:      cfg.Breaker.MaxSingleLossPct,
		WarnConsecutiveLosses: cfg.Breaker.WarnConsecutiveLosses,
		WarnSessionLossPct:    cfg.Breaker.WarnSessionLossPct,
	}
}

func limiterConfig(cfg *config.Config) risk.LimiterConfig {
	return risk.LimiterConfig{
		MaxCorrelatedPositions: cfg.Correlation.MaxCorrelatedPositions,
		MaxGroupExposurePct:    cfg.Correlation.MaxGroupExposurePct,
		MaxTotalExposurePct:    cfg.Correlation.MaxTotalExposurePct,
		MaxSameDirection:       cfg.Correlation.MaxSameDirection,
		MaxSinglePositionPct:   cfg.Correlation.MaxSinglePositionPct,
	}
}

func statsConfig(cfg *config.Config) kelly.StatsConfig {
	return kelly.StatsConfig{
		WindowSize:     cfg.Kelly.WindowSize,
		MinTrades:      cfg.Kelly.MinTrades,
		ScratchEpsilon: cfg.Kelly.ScratchEpsilon,
		MinWinRate:     cfg.Kelly.MinWinRate,
		MinRewardRatio: cfg.Kelly.MinRewardRatio,
	}
}

func sizerConfig(cfg *config.Config) kelly.SizerConfig {
	return kelly.SizerConfig{
		Fraction:       cfg.Kelly.Fraction,
		MaxPositionPct: cfg.Kelly.MaxPositionPct,
		MinPositionPct: cfg.Kelly.MinPositionPct,
		BootstrapPct:   cfg.Kelly.BootstrapPct,
	}
}

func edgeWeights(cfg *config.Config) kelly.EdgeWeights {
	return kelly.EdgeWeights{
		Velocity:  cfg.Kelly.WeightVelocity,
		Volume:    cfg.Kelly.WeightVolume,
		MTF:       cfg.Kelly.WeightMTF,
		Book:      cfg.Kelly.WeightBook,
		Sentiment: cfg.Kelly.WeightSentiment,
	}
}

func edgeConfig(cfg *config.Config) edge.Config {
	return edge.Config{
		DefaultEdge: cfg.Edge.DefaultEdge,
		MinSamples:  cfg.Edge.MinSamples,
		MaxEdge:     cfg.Edge.MaxEdge,
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
