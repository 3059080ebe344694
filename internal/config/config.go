// Package config loads the control plane's configuration from the
// process environment (spec §6), not from a YAML file — a deliberate
// divergence from the teacher's config.go, which read config.yaml plus
// os.ExpandEnv. The idiom survives the move: nested config structs, an
// explicit Validate()/Normalize() pair, and IANA timezone handling via
// time.LoadLocation where needed. github.com/joho/godotenv optionally
// loads a local .env file first (operator convenience in dev, a no-op
// in prod where the orchestrator is launched with real env vars set).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Risk limit defaults, mirroring internal/risk.DefaultLimits() so a config
// with no RISK_* overrides behaves identically to the risk gate's own
// zero-value fallback.
const (
	defaultMinPositionUSD        = 10.0
	defaultMaxPositionUSD        = 500.0
	defaultMaxDailyLossUSD       = 200.0
	defaultMaxDrawdownUSD        = 1000.0
	defaultMaxOpenPositions      = 3
	defaultMaxPositionsPerSymbol = 1
	defaultMinAccountBalanceUSD  = 1000.0
	defaultMaxAccountUtilization = 0.8
	defaultEntropyThreshold      = 0.85
	defaultATRMultiplier         = 2.0
	defaultKellyDampener         = 0.5

	defaultCacheCapacity = 1024
	defaultCacheTTL      = 90 * time.Second

	defaultFastLoopInterval = 5 * time.Second
	defaultMainLoopInterval = 60 * time.Second

	defaultAPIPort = 9847
)

// Config is the complete runtime configuration, assembled from environment
// variables by Load.
type Config struct {
	Environment EnvironmentConfig
	Broker      BrokerConfig
	Trading     TradingConfig
	Risk        RiskConfig
	Signal      SignalConfig
	Cache       CacheConfig
	Storage     StorageConfig
	API         APIConfig
}

// EnvironmentConfig is general process configuration.
type EnvironmentConfig struct {
	LogLevel string // debug | info | warn | error
}

// BrokerConfig carries the exchange wire-client credentials and routing
// (spec §6's "broker URL + proxy URL + secrets").
type BrokerConfig struct {
	BaseURL     string
	ProxyURL    string
	ProxySecret string // bearer credential for the proxy, Authorization: Bearer <shared-secret>
	APIKey      string // X-MBX-APIKEY
	APISecret   string // HMAC signing key
}

// TradingConfig holds the kill switches and the traded symbol universe.
type TradingConfig struct {
	TradingEnabled bool // kill switch: gates order placement everywhere
	QuantEnabled   bool // gates the main loop's feature pipeline tick
	Symbols        []string
	Interval       string // primary candle interval, e.g. "1m"
	FastLoop       time.Duration
	MainLoop       time.Duration

	// TickSizes/StepSizes mirror Binance's per-symbol PRICE_FILTER.tickSize
	// and LOT_SIZE.stepSize (spec's broker wire protocol has no exchangeInfo
	// call, so these are operator-supplied rather than fetched). Missing
	// symbols fall back to DefaultTickSize/DefaultStepSize.
	TickSizes map[string]float64
	StepSizes map[string]float64
}

// DefaultTickSize/DefaultStepSize are the fallback PRICE_FILTER/LOT_SIZE
// increments for any symbol not listed in SYMBOL_TICK_SIZES/SYMBOL_STEP_SIZES.
const (
	DefaultTickSize = 0.01
	DefaultStepSize = 0.0001
)

// RiskConfig mirrors internal/risk.Limits so it can be loaded from the
// environment and handed straight to risk.NewGate.
type RiskConfig struct {
	MinPositionUSD         float64
	MaxPositionUSD         float64
	MaxDailyLossUSD        float64
	MaxDrawdownUSD         float64
	MaxOpenPositions       int
	MaxPositionsPerSymbol  int
	MinAccountBalanceUSD   float64
	MaxAccountUtilization  float64
	AutoApprovalThreshold  float64
	EntropyThreshold       float64
	QuantSizeToleranceMult float64
	QuantEnabled           bool

	ATRMultiplier float64
	KellyDampener float64
}

// SignalConfig holds the Signal Generator's thresholds (spec §4.8),
// supplemented from signal_generator.py's module constants and made
// configurable rather than hardcoded.
type SignalConfig struct {
	BuyRSIMax        float64
	BuyMACDHistMin   float64
	BuyADXMin        float64
	BuyEntropyMin    float64
	SellRSIMin       float64
	SellMACDHistMax  float64
	MaxOpenPositions int
	CooldownMinutes  int
}

// CacheConfig sizes the feature pipeline's per-tick analyzer cache.
type CacheConfig struct {
	Capacity int
	TTL      time.Duration
}

// StorageConfig locates the state store's on-disk files.
type StorageConfig struct {
	Path string
}

// APIConfig configures the operator HTTP surface (spec §6).
type APIConfig struct {
	Addr         string
	SharedSecret string // bearer token every endpoint but /health requires
}

// Load assembles a Config from the environment. It first loads envPath (a
// .env file) if present — godotenv.Load silently no-ops rather than
// erroring when the file is absent, so this is safe in production where
// vars are set by the process supervisor instead.
func Load(envPath string) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}
	_ = godotenv.Load(envPath)

	cfg := &Config{
		Environment: EnvironmentConfig{
			LogLevel: getEnvDefault("LOG_LEVEL", "info"),
		},
		Broker: BrokerConfig{
			BaseURL:     os.Getenv("BROKER_BASE_URL"),
			ProxyURL:    os.Getenv("BROKER_PROXY_URL"),
			ProxySecret: os.Getenv("BROKER_PROXY_SECRET"),
			APIKey:      os.Getenv("BROKER_API_KEY"),
			APISecret:   os.Getenv("BROKER_API_SECRET"),
		},
		Trading: TradingConfig{
			TradingEnabled: getEnvBool("TRADING_ENABLED", false),
			QuantEnabled:   getEnvBool("QUANT_ENABLED", true),
			Symbols:        getEnvList("SYMBOLS", nil),
			Interval:       getEnvDefault("PRIMARY_INTERVAL", "1m"),
			FastLoop:       getEnvDuration("FAST_LOOP_INTERVAL", defaultFastLoopInterval),
			MainLoop:       getEnvDuration("MAIN_LOOP_INTERVAL", defaultMainLoopInterval),
			TickSizes:      getEnvFloatMap("SYMBOL_TICK_SIZES"),
			StepSizes:      getEnvFloatMap("SYMBOL_STEP_SIZES"),
		},
		Risk: RiskConfig{
			MinPositionUSD:         getEnvFloat("RISK_MIN_POSITION_USD", defaultMinPositionUSD),
			MaxPositionUSD:         getEnvFloat("RISK_MAX_POSITION_USD", defaultMaxPositionUSD),
			MaxDailyLossUSD:        getEnvFloat("RISK_MAX_DAILY_LOSS_USD", defaultMaxDailyLossUSD),
			MaxDrawdownUSD:         getEnvFloat("RISK_MAX_DRAWDOWN_USD", defaultMaxDrawdownUSD),
			MaxOpenPositions:       getEnvInt("RISK_MAX_OPEN_POSITIONS", defaultMaxOpenPositions),
			MaxPositionsPerSymbol:  getEnvInt("RISK_MAX_POSITIONS_PER_SYMBOL", defaultMaxPositionsPerSymbol),
			MinAccountBalanceUSD:   getEnvFloat("RISK_MIN_ACCOUNT_BALANCE_USD", defaultMinAccountBalanceUSD),
			MaxAccountUtilization:  getEnvFloat("RISK_MAX_ACCOUNT_UTILIZATION", defaultMaxAccountUtilization),
			AutoApprovalThreshold:  getEnvFloat("RISK_AUTO_APPROVAL_THRESHOLD_USD", defaultMaxPositionUSD/5),
			EntropyThreshold:       getEnvFloat("RISK_ENTROPY_THRESHOLD", defaultEntropyThreshold),
			QuantSizeToleranceMult: getEnvFloat("RISK_QUANT_SIZE_TOLERANCE", 1.5),
			QuantEnabled:           getEnvBool("QUANT_ENABLED", true),
			ATRMultiplier:          getEnvFloat("RISK_ATR_MULTIPLIER", defaultATRMultiplier),
			KellyDampener:          getEnvFloat("RISK_KELLY_DAMPENER", defaultKellyDampener),
		},
		Signal: SignalConfig{
			BuyRSIMax:        getEnvFloat("SIGNAL_BUY_RSI_MAX", 38.0),
			BuyMACDHistMin:   getEnvFloat("SIGNAL_BUY_MACD_HIST_MIN", -5.0),
			BuyADXMin:        getEnvFloat("SIGNAL_BUY_ADX_MIN", 20.0),
			BuyEntropyMin:    getEnvFloat("SIGNAL_BUY_ENTROPY_MIN", 0.55),
			SellRSIMin:       getEnvFloat("SIGNAL_SELL_RSI_MIN", 68.0),
			SellMACDHistMax:  getEnvFloat("SIGNAL_SELL_MACD_HIST_MAX", 5.0),
			MaxOpenPositions: getEnvInt("SIGNAL_MAX_OPEN_POSITIONS", 2),
			CooldownMinutes:  getEnvInt("SIGNAL_COOLDOWN_MINUTES", 240),
		},
		Cache: CacheConfig{
			Capacity: getEnvInt("CACHE_CAPACITY", defaultCacheCapacity),
			TTL:      getEnvDuration("CACHE_TTL", defaultCacheTTL),
		},
		Storage: StorageConfig{
			Path: getEnvDefault("STORAGE_PATH", "./data"),
		},
		API: APIConfig{
			Addr:         getEnvDefault("API_ADDR", fmt.Sprintf(":%d", defaultAPIPort)),
			SharedSecret: os.Getenv("API_SHARED_SECRET"),
		},
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Normalize fills in any defaults Load's getEnv helpers couldn't (because
// they depend on other fields), mirroring the teacher's Normalize pass.
func (c *Config) Normalize() {
	if c.Trading.FastLoop <= 0 {
		c.Trading.FastLoop = defaultFastLoopInterval
	}
	if c.Trading.MainLoop <= 0 {
		c.Trading.MainLoop = defaultMainLoopInterval
	}
	if c.Cache.Capacity <= 0 {
		c.Cache.Capacity = defaultCacheCapacity
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	for i, s := range c.Trading.Symbols {
		c.Trading.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
}

// Validate checks that all configuration values are valid and consistent,
// per spec §7's config_missing error class — a missing required value
// fails fast at startup rather than surfacing mid-run.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Broker.BaseURL) == "" {
		return fmt.Errorf("BROKER_BASE_URL is required")
	}
	if strings.TrimSpace(c.Broker.APIKey) == "" {
		return fmt.Errorf("BROKER_API_KEY is required")
	}
	if strings.TrimSpace(c.Broker.APISecret) == "" {
		return fmt.Errorf("BROKER_API_SECRET is required")
	}

	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must list at least one symbol")
	}
	if strings.TrimSpace(c.Trading.Interval) == "" {
		return fmt.Errorf("PRIMARY_INTERVAL is required")
	}
	if c.Trading.FastLoop <= 0 {
		return fmt.Errorf("FAST_LOOP_INTERVAL must be > 0")
	}
	if c.Trading.MainLoop <= 0 {
		return fmt.Errorf("MAIN_LOOP_INTERVAL must be > 0")
	}

	if c.Risk.MinPositionUSD <= 0 || c.Risk.MaxPositionUSD <= c.Risk.MinPositionUSD {
		return fmt.Errorf("RISK_MIN_POSITION_USD/RISK_MAX_POSITION_USD must form a positive range")
	}
	if c.Risk.MaxOpenPositions <= 0 {
		return fmt.Errorf("RISK_MAX_OPEN_POSITIONS must be > 0")
	}
	if c.Risk.MaxPositionsPerSymbol <= 0 {
		return fmt.Errorf("RISK_MAX_POSITIONS_PER_SYMBOL must be > 0")
	}
	if c.Risk.MaxAccountUtilization <= 0 || c.Risk.MaxAccountUtilization > 1 {
		return fmt.Errorf("RISK_MAX_ACCOUNT_UTILIZATION must be in (0,1]")
	}
	if c.Risk.EntropyThreshold < 0 || c.Risk.EntropyThreshold > 1 {
		return fmt.Errorf("RISK_ENTROPY_THRESHOLD must be in [0,1]")
	}

	if c.Signal.MaxOpenPositions <= 0 {
		return fmt.Errorf("SIGNAL_MAX_OPEN_POSITIONS must be > 0")
	}
	if c.Signal.CooldownMinutes < 0 {
		return fmt.Errorf("SIGNAL_COOLDOWN_MINUTES must be >= 0")
	}
	if c.Signal.BuyRSIMax <= 0 || c.Signal.BuyRSIMax >= 100 {
		return fmt.Errorf("SIGNAL_BUY_RSI_MAX must be in (0,100)")
	}
	if c.Signal.SellRSIMin <= 0 || c.Signal.SellRSIMin >= 100 {
		return fmt.Errorf("SIGNAL_SELL_RSI_MIN must be in (0,100)")
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("CACHE_CAPACITY must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be > 0")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}

	if strings.TrimSpace(c.API.SharedSecret) == "" {
		return fmt.Errorf("API_SHARED_SECRET is required")
	}

	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// getEnvFloatMap parses a "SYMBOL:value,SYMBOL:value" env var into a map,
// e.g. SYMBOL_TICK_SIZES=BTCUSDT:0.01,ETHUSDT:0.01. Malformed entries are
// skipped; a missing or empty var yields an empty (not nil) map so callers
// can look up without a nil check.
func getEnvFloatMap(key string) map[string]float64 {
	out := make(map[string]float64)
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return out
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[0]))
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || symbol == "" {
			continue
		}
		out[symbol] = f
	}
	return out
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
