package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the decision engine process.
type Config struct {
	EngineConfig    EngineConfig    `json:"engine"`
	QualityConfig   QualityConfig   `json:"quality"`
	ThresholdConfig ThresholdConfig `json:"threshold"`
	EntryConfig     EntryConfig     `json:"entry"`
	LifecycleConfig LifecycleConfig `json:"lifecycle"`
	GuardConfig     GuardConfig     `json:"guard"`
	DatabaseConfig  DatabaseConfig  `json:"database"`
	RedisConfig     RedisConfig     `json:"redis"`
	ServerConfig    ServerConfig    `json:"server"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// EngineConfig holds top-level engine and polling-loop settings
type EngineConfig struct {
	PollInterval      time.Duration `json:"poll_interval"`      // Time between decision cycles
	Instruments       []string      `json:"instruments"`        // Instruments to evaluate each cycle
	HighVolBoundary   float64       `json:"high_vol_boundary"`  // Volatility measure above which an instrument is classed high_vol
	JournalDecisions  bool          `json:"journal_decisions"`  // Persist every decision to the database
	PersistThresholds bool          `json:"persist_thresholds"` // Persist adaptive threshold state across restarts
}

// QualityConfig holds the quality scorer contribution magnitudes.
// Every value is a cap on an additive contribution, never a gate.
type QualityConfig struct {
	AlignmentMax       float64 `json:"alignment_max"`       // Max bonus for multi-timeframe alignment with the signal
	ConfluenceMax      float64 `json:"confluence_max"`      // Max bonus for cross-class confluence
	RegimeAlignBonus   float64 `json:"regime_align_bonus"`  // Bonus when the regime agrees with the signal
	RegimeConflictPen  float64 `json:"regime_conflict_pen"` // Penalty when the regime opposes the signal (scaled by alignment)
	DivergencePenMax   float64 `json:"divergence_pen_max"`  // Max penalty for volume divergence
	DivergenceFloor    float64 `json:"divergence_floor"`    // Divergence below this contributes nothing
	DivergenceCeiling  float64 `json:"divergence_ceiling"`  // Divergence at or above this takes the full penalty
	InstitutionalBonus float64 `json:"institutional_bonus"` // Accumulation/distribution contribution above the activity floor
	InstitutionalFloor float64 `json:"institutional_floor"` // Accumulation/distribution score that activates the contribution
	OrderBookMax       float64 `json:"order_book_max"`      // Max bonus for order-book pressure confirming direction
}

// ThresholdConfig holds the adaptive confidence threshold parameters
type ThresholdConfig struct {
	Default     float64 `json:"default"`       // Starting minimum confidence (0-100)
	Floor       float64 `json:"floor"`         // Threshold can never drop below this
	Ceiling     float64 `json:"ceiling"`       // Threshold can never rise above this
	Step        float64 `json:"step"`          // Adjustment size per trigger
	WindowSize  int     `json:"window_size"`   // Rolling outcome window length
	MinOutcomes int     `json:"min_outcomes"`  // Outcomes required before any adjustment
	HighWinRate float64 `json:"high_win_rate"` // Win rate above this loosens the threshold
	LowWinRate  float64 `json:"low_win_rate"`  // Win rate below this tightens the threshold
}

// EntryConfig holds entry gate parameters
type EntryConfig struct {
	HighVolMultiplier float64 `json:"high_vol_multiplier"` // Confidence requirement multiplier for high-volatility classes
	EscapeMargin      float64 `json:"escape_margin"`       // Confidence points above requirement that bypass the quality check
	SizeMultiplierMin float64 `json:"size_multiplier_min"` // Lower clamp on the sizing multiplier
	SizeMultiplierMax float64 `json:"size_multiplier_max"` // Upper clamp on the sizing multiplier
}

// LifecycleConfig holds position lifecycle parameters
type LifecycleConfig struct {
	HardStopLossPct      float64       `json:"hard_stop_loss_pct"`      // Unrealized loss % of notional that forces a close
	ReversalConfidence   float64       `json:"reversal_confidence"`     // Opposing-signal confidence that closes a losing position
	RecoveryDCAMin       float64       `json:"recovery_dca_min"`        // Recovery probability at or above this allows averaging down
	RecoveryGiveUp       float64       `json:"recovery_give_up"`        // Recovery probability below this closes the position
	BaseDCACap           int           `json:"base_dca_cap"`            // Averaging additions allowed in ranging/volatile regimes
	TrendingDCABonus     int           `json:"trending_dca_bonus"`      // Extra addition allowed in a strong trending regime
	DCATargetDistancePct float64       `json:"dca_target_distance_pct"` // Bound on how far toward breakeven an addition may pull the average entry
	MinDwellTime         time.Duration `json:"min_dwell_time"`          // Position age before anything but the hard stop may fire
	ScaleOutFraction     float64       `json:"scale_out_fraction"`      // Fraction of the dynamic target that triggers a partial close
	ScaleOutPortion      float64       `json:"scale_out_portion"`       // Portion of the position removed on scale-out
	ProfitTargetCeiling  float64       `json:"profit_target_ceiling"`   // Upper bound on the volatility multiple used for targets
	ProfitTargetFloor    float64       `json:"profit_target_floor"`     // Lower bound on the volatility multiple
	MaxPositionNotional  float64       `json:"max_position_notional"`   // Size cap beyond which scale-in is refused
	ScaleInFraction      float64       `json:"scale_in_fraction"`       // Base fraction of current size added on scale-in
}

// GuardConfig holds portfolio risk guard parameters
type GuardConfig struct {
	TaperStartFraction float64 `json:"taper_start_fraction"` // Remaining-budget fraction below which size multipliers shrink
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis settings for the shared threshold snapshot
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds the operator API server settings
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// LoggingConfig holds zerolog settings
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // Console writer instead of JSON
}

// DefaultEngineConfig returns engine defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PollInterval:      30 * time.Second,
		HighVolBoundary:   0.6,
		JournalDecisions:  true,
		PersistThresholds: true,
	}
}

// DefaultQualityConfig returns the scorer contribution defaults
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		AlignmentMax:       0.50,
		ConfluenceMax:      0.45,
		RegimeAlignBonus:   0.15,
		RegimeConflictPen:  0.20,
		DivergencePenMax:   0.25,
		DivergenceFloor:    0.3,
		DivergenceCeiling:  0.7,
		InstitutionalBonus: 0.20,
		InstitutionalFloor: 0.7,
		OrderBookMax:       0.15,
	}
}

// DefaultThresholdConfig returns adaptive threshold defaults
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Default:     50,
		Floor:       40,
		Ceiling:     75,
		Step:        2,
		WindowSize:  20,
		MinOutcomes: 10,
		HighWinRate: 0.6,
		LowWinRate:  0.4,
	}
}

// DefaultEntryConfig returns entry gate defaults
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		HighVolMultiplier: 1.2,
		EscapeMargin:      10,
		SizeMultiplierMin: 0.5,
		SizeMultiplierMax: 1.8,
	}
}

// DefaultLifecycleConfig returns lifecycle defaults
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		HardStopLossPct:      2.0,
		ReversalConfidence:   75,
		RecoveryDCAMin:       0.5,
		RecoveryGiveUp:       0.3,
		BaseDCACap:           1,
		TrendingDCABonus:     1,
		DCATargetDistancePct: 0.5,
		MinDwellTime:         30 * time.Minute,
		ScaleOutFraction:     0.7,
		ScaleOutPortion:      0.5,
		ProfitTargetCeiling:  4.0,
		ProfitTargetFloor:    1.0,
		MaxPositionNotional:  10000,
		ScaleInFraction:      0.25,
	}
}

// DefaultGuardConfig returns risk guard defaults
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		TaperStartFraction: 0.2,
	}
}

// Default returns a fully populated configuration with all defaults applied
func Default() *Config {
	return &Config{
		EngineConfig:    DefaultEngineConfig(),
		QualityConfig:   DefaultQualityConfig(),
		ThresholdConfig: DefaultThresholdConfig(),
		EntryConfig:     DefaultEntryConfig(),
		LifecycleConfig: DefaultLifecycleConfig(),
		GuardConfig:     DefaultGuardConfig(),
		DatabaseConfig: DatabaseConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "decision_engine",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  false,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		ServerConfig: ServerConfig{
			Enabled:         true,
			Host:            "0.0.0.0",
			Port:            8080,
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads config.json if present, then applies environment variable
// overrides (these take precedence over the file).
func Load() (*Config, error) {
	cfg := Default()

	if file, err := os.ReadFile("config.json"); err == nil {
		if err := json.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Engine
	cfg.EngineConfig.PollInterval = getEnvDurationOrDefault("ENGINE_POLL_INTERVAL", cfg.EngineConfig.PollInterval)
	cfg.EngineConfig.HighVolBoundary = getEnvFloatOrDefault("ENGINE_HIGH_VOL_BOUNDARY", cfg.EngineConfig.HighVolBoundary)

	// Threshold
	cfg.ThresholdConfig.Default = getEnvFloatOrDefault("THRESHOLD_DEFAULT", cfg.ThresholdConfig.Default)
	cfg.ThresholdConfig.Floor = getEnvFloatOrDefault("THRESHOLD_FLOOR", cfg.ThresholdConfig.Floor)
	cfg.ThresholdConfig.Ceiling = getEnvFloatOrDefault("THRESHOLD_CEILING", cfg.ThresholdConfig.Ceiling)

	// Lifecycle
	cfg.LifecycleConfig.HardStopLossPct = getEnvFloatOrDefault("LIFECYCLE_HARD_STOP_PCT", cfg.LifecycleConfig.HardStopLossPct)
	cfg.LifecycleConfig.MinDwellTime = getEnvDurationOrDefault("LIFECYCLE_MIN_DWELL", cfg.LifecycleConfig.MinDwellTime)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	if v := os.Getenv("DB_ENABLED"); v != "" {
		cfg.DatabaseConfig.Enabled = v == "true"
	}

	// Redis
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		cfg.RedisConfig.Enabled = v == "true"
	}
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	if v := os.Getenv("SERVER_ENABLED"); v != "" {
		cfg.ServerConfig.Enabled = v == "true"
	}

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LoggingConfig.Pretty = v == "true"
	}
}

// Validate checks that configured bounds are internally consistent.
// A broken bound here must stop the process before the first decision cycle.
func (c *Config) Validate() error {
	t := c.ThresholdConfig
	if t.Floor <= 0 || t.Ceiling <= 0 || t.Floor >= t.Ceiling {
		return fmt.Errorf("threshold bounds invalid: floor=%.1f ceiling=%.1f", t.Floor, t.Ceiling)
	}
	if t.Default < t.Floor || t.Default > t.Ceiling {
		return fmt.Errorf("threshold default %.1f outside [%.1f, %.1f]", t.Default, t.Floor, t.Ceiling)
	}
	if t.WindowSize <= 0 {
		return fmt.Errorf("threshold window size must be positive, got %d", t.WindowSize)
	}
	if t.LowWinRate >= t.HighWinRate {
		return fmt.Errorf("threshold win-rate marks invalid: low=%.2f high=%.2f", t.LowWinRate, t.HighWinRate)
	}

	e := c.EntryConfig
	if e.SizeMultiplierMin <= 0 || e.SizeMultiplierMin >= e.SizeMultiplierMax {
		return fmt.Errorf("entry size multiplier clamp invalid: min=%.2f max=%.2f", e.SizeMultiplierMin, e.SizeMultiplierMax)
	}

	l := c.LifecycleConfig
	if l.HardStopLossPct <= 0 {
		return fmt.Errorf("hard stop loss percent must be positive, got %.2f", l.HardStopLossPct)
	}
	if l.MinDwellTime <= 0 {
		return fmt.Errorf("minimum dwell time must be positive, got %v", l.MinDwellTime)
	}
	if l.RecoveryGiveUp >= l.RecoveryDCAMin {
		return fmt.Errorf("recovery thresholds invalid: give-up=%.2f dca-min=%.2f", l.RecoveryGiveUp, l.RecoveryDCAMin)
	}
	if l.ScaleOutPortion <= 0 || l.ScaleOutPortion >= 1 {
		return fmt.Errorf("scale-out portion must be in (0,1), got %.2f", l.ScaleOutPortion)
	}

	g := c.GuardConfig
	if g.TaperStartFraction <= 0 || g.TaperStartFraction >= 1 {
		return fmt.Errorf("guard taper fraction must be in (0,1), got %.2f", g.TaperStartFraction)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
