package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del core de riesgo.
type Config struct {
	Session     SessionConfig     `yaml:"session"`
	Breaker     BreakerConfig     `yaml:"breaker"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Kelly       KellyConfig       `yaml:"kelly"`
	Edge        EdgeConfig        `yaml:"edge"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// SessionConfig controla la sesión de trading.
type SessionConfig struct {
	StartingBalance  float64 `yaml:"starting_balance"`  // bankroll inicial en USDC
	HeartbeatSeconds int     `yaml:"heartbeat_seconds"` // intervalo del heartbeat
}

// BreakerConfig controla el circuit breaker de la sesión.
type BreakerConfig struct {
	MaxConsecutiveLosses  int     `yaml:"max_consecutive_losses"`  // halt tras N pérdidas seguidas
	CooldownMinutes       int     `yaml:"cooldown_minutes"`        // auto-resume tras N minutos
	MaxSessionLossPct     float64 `yaml:"max_session_loss_pct"`    // halt si la sesión pierde >X%
	MaxSingleLossPct      float64 `yaml:"max_single_loss_pct"`     // halt si un solo trade pierde >X%
	WarnConsecutiveLosses int     `yaml:"warn_consecutive_losses"` // warning (no bloquea)
	WarnSessionLossPct    float64 `yaml:"warn_session_loss_pct"`   // warning (no bloquea)
}

// CorrelationConfig controla los límites de exposición por correlación.
type CorrelationConfig struct {
	MaxCorrelatedPositions int                 `yaml:"max_correlated_positions"` // máx posiciones abiertas en un grupo
	MaxGroupExposurePct    float64             `yaml:"max_group_exposure_pct"`   // máx % del portfolio en un grupo
	MaxTotalExposurePct    float64             `yaml:"max_total_exposure_pct"`   // máx % del portfolio abierto
	MaxSameDirection       int                 `yaml:"max_same_direction"`       // máx posiciones en la misma dirección
	MaxSinglePositionPct   float64             `yaml:"max_single_position_pct"`  // máx % por posición individual
	Groups                 map[string][]string `yaml:"groups"`                   // grupo → coins correlacionadas
}

// KellyConfig controla el sizing por criterio de Kelly.
type KellyConfig struct {
	WindowSize     int     `yaml:"window_size"`      // ventana rodante de trades por coin
	MinTrades      int     `yaml:"min_trades"`       // mínimo de muestras antes de confiar en las stats
	ScratchEpsilon float64 `yaml:"scratch_epsilon"`  // |pnl| bajo este umbral = scratch, se ignora
	MinWinRate     float64 `yaml:"min_win_rate"`     // suelo de win rate — debajo, Kelly = 0
	MinRewardRatio float64 `yaml:"min_reward_ratio"` // suelo de avg_win/avg_loss — debajo, Kelly = 0
	Fraction       float64 `yaml:"fraction"`         // fracción de Kelly (0.5 = half-Kelly)
	MaxPositionPct float64 `yaml:"max_position_pct"` // cap duro del bankroll por trade
	MinPositionPct float64 `yaml:"min_position_pct"` // debajo de esto, el trade no merece la pena
	BootstrapPct   float64 `yaml:"bootstrap_pct"`    // tamaño fijo mientras no hay datos

	// Pesos del edge score compuesto. Deben sumar 1.0 — su procedencia es
	// política de estrategia, no teoría, así que viven en config.
	WeightVelocity  float64 `yaml:"weight_velocity"`
	WeightVolume    float64 `yaml:"weight_volume"`
	WeightMTF       float64 `yaml:"weight_mtf"`
	WeightBook      float64 `yaml:"weight_book"`
	WeightSentiment float64 `yaml:"weight_sentiment"`
}

// EdgeConfig controla el tracker empírico de edge.
type EdgeConfig struct {
	DefaultEdge float64 `yaml:"default_edge"` // edge conservador sin datos (1%)
	MinSamples  int     `yaml:"min_samples"`  // muestras para confianza total
	MaxEdge     float64 `yaml:"max_edge"`     // cap de cordura sobre el edge estimado
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN            string `yaml:"dsn"`              // ruta al archivo SQLite, o ":memory:"
	EdgeStatePath  string `yaml:"edge_state_path"`  // snapshot JSON del EdgeTracker
	KellyStatePath string `yaml:"kelly_state_path"` // snapshot JSON de las stats de Kelly
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	SetDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve la configuración con todos los valores por defecto.
func Default() *Config {
	cfg := &Config{}
	SetDefaults(cfg)
	return cfg
}

// HeartbeatInterval devuelve el intervalo del heartbeat como time.Duration.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Session.HeartbeatSeconds) * time.Second
}

// Cooldown devuelve el cooldown del breaker como time.Duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("POLYRISK_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// SetDefaults asegura que todos los umbrales tengan valores sensatos.
// Ningún umbral numérico está hardcodeado en los componentes — todos salen de aquí.
func SetDefaults(cfg *Config) {
	if cfg.Session.StartingBalance <= 0 {
		cfg.Session.StartingBalance = 500
	}
	if cfg.Session.HeartbeatSeconds <= 0 {
		cfg.Session.HeartbeatSeconds = 300 // cada 5 minutos
	}

	if cfg.Breaker.MaxConsecutiveLosses <= 0 {
		cfg.Breaker.MaxConsecutiveLosses = 3
	}
	if cfg.Breaker.CooldownMinutes <= 0 {
		cfg.Breaker.CooldownMinutes = 30
	}
	if cfg.Breaker.MaxSessionLossPct <= 0 {
		cfg.Breaker.MaxSessionLossPct = 0.05
	}
	if cfg.Breaker.MaxSingleLossPct <= 0 {
		cfg.Breaker.MaxSingleLossPct = 0.03
	}
	if cfg.Breaker.WarnConsecutiveLosses <= 0 {
		cfg.Breaker.WarnConsecutiveLosses = 2
	}
	if cfg.Breaker.WarnSessionLossPct <= 0 {
		cfg.Breaker.WarnSessionLossPct = 0.03
	}

	if cfg.Correlation.MaxCorrelatedPositions <= 0 {
		cfg.Correlation.MaxCorrelatedPositions = 2
	}
	if cfg.Correlation.MaxGroupExposurePct <= 0 {
		cfg.Correlation.MaxGroupExposurePct = 0.10
	}
	if cfg.Correlation.MaxTotalExposurePct <= 0 {
		cfg.Correlation.MaxTotalExposurePct = 0.15
	}
	if cfg.Correlation.MaxSameDirection <= 0 {
		cfg.Correlation.MaxSameDirection = 3
	}
	if cfg.Correlation.MaxSinglePositionPct <= 0 {
		cfg.Correlation.MaxSinglePositionPct = 0.05
	}
	if len(cfg.Correlation.Groups) == 0 {
		cfg.Correlation.Groups = map[string][]string{
			"crypto_large_cap": {"BTC", "ETH", "SOL", "XRP"}, // se mueven juntas con macro
		}
	}

	if cfg.Kelly.WindowSize <= 0 {
		cfg.Kelly.WindowSize = 20
	}
	if cfg.Kelly.MinTrades <= 0 {
		cfg.Kelly.MinTrades = 5
	}
	if cfg.Kelly.ScratchEpsilon <= 0 {
		cfg.Kelly.ScratchEpsilon = 0.005
	}
	if cfg.Kelly.MinWinRate <= 0 {
		cfg.Kelly.MinWinRate = 0.40
	}
	if cfg.Kelly.MinRewardRatio <= 0 {
		cfg.Kelly.MinRewardRatio = 0.50
	}
	if cfg.Kelly.Fraction <= 0 {
		cfg.Kelly.Fraction = 0.5 // half-Kelly
	}
	if cfg.Kelly.MaxPositionPct <= 0 {
		cfg.Kelly.MaxPositionPct = 0.10
	}
	if cfg.Kelly.MinPositionPct <= 0 {
		cfg.Kelly.MinPositionPct = 0.005
	}
	if cfg.Kelly.BootstrapPct <= 0 {
		cfg.Kelly.BootstrapPct = 0.02
	}
	if cfg.Kelly.WeightVelocity <= 0 {
		cfg.Kelly.WeightVelocity = 0.20
	}
	if cfg.Kelly.WeightVolume <= 0 {
		cfg.Kelly.WeightVolume = 0.15
	}
	if cfg.Kelly.WeightMTF <= 0 {
		cfg.Kelly.WeightMTF = 0.30
	}
	if cfg.Kelly.WeightBook <= 0 {
		cfg.Kelly.WeightBook = 0.25
	}
	if cfg.Kelly.WeightSentiment <= 0 {
		cfg.Kelly.WeightSentiment = 0.10
	}

	if cfg.Edge.DefaultEdge <= 0 {
		cfg.Edge.DefaultEdge = 0.01
	}
	if cfg.Edge.MinSamples <= 0 {
		cfg.Edge.MinSamples = 30
	}
	if cfg.Edge.MaxEdge <= 0 {
		cfg.Edge.MaxEdge = 0.25
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polyrisk.db"
	}
	if cfg.Storage.EdgeStatePath == "" {
		cfg.Storage.EdgeStatePath = "edge_tracker.json"
	}
	if cfg.Storage.KellyStatePath == "" {
		cfg.Storage.KellyStatePath = "kelly_stats.json"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
