// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/fd1az/flashloan-arbitrage/internal/apperror"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig        `mapstructure:"app"`
	Networks  []NetworkConfig  `mapstructure:"networks"`
	Tokens    []TokenConfig    `mapstructure:"tokens"`
	Exchanges []ExchangeConfig `mapstructure:"exchanges"`
	Pairs     []string         `mapstructure:"pairs"`
	Feeds     FeedsConfig      `mapstructure:"feeds"`
	Detector  DetectorConfig   `mapstructure:"detector"`
	Validator ValidatorConfig  `mapstructure:"validator"`
	Risk      RiskConfig       `mapstructure:"risk"`
	Execution ExecutionConfig  `mapstructure:"execution"`
	Scanner   ScannerConfig    `mapstructure:"scanner"`
	Scorer    ScorerConfig     `mapstructure:"scorer"`
	Bridges   []BridgeConfig   `mapstructure:"bridges"`
	Postgres  PostgresConfig   `mapstructure:"postgres"`
	Redis     RedisConfig      `mapstructure:"redis"`
	API       APIConfig        `mapstructure:"api"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// NetworkConfig describes one chain the scanner reads from and executes on.
type NetworkConfig struct {
	Name            string  `mapstructure:"name"`
	RPCURL          string  `mapstructure:"rpc_url"`
	ChainID         uint64  `mapstructure:"chain_id"`
	ExecutorAddress string  `mapstructure:"executor_address"`
	NativePair      string  `mapstructure:"native_pair"`  // pair whose price values gas in quote units
	NativePrice     float64 `mapstructure:"native_price"` // fallback when native_pair has no fresh quote
	GasUnits        uint64  `mapstructure:"gas_units"`    // worst-case gas for one flash-loan round trip
	GasBuffer       float64 `mapstructure:"gas_buffer"`   // multiplier on the current gas price
	MaxGasPriceGwei float64 `mapstructure:"max_gas_price_gwei"`
}

// ExecutorAddressHex returns the executor contract address.
func (n *NetworkConfig) ExecutorAddressHex() common.Address {
	return common.HexToAddress(n.ExecutorAddress)
}

// TokenConfig registers an ERC20 on a network.
type TokenConfig struct {
	Symbol   string `mapstructure:"symbol"`
	Network  string `mapstructure:"network"`
	Address  string `mapstructure:"address"`
	Decimals int32  `mapstructure:"decimals"`
}

// ExchangeConfig configures one price source.
type ExchangeConfig struct {
	Name    string `mapstructure:"name"`
	Kind    string `mapstructure:"kind"` // "uniswap_v3" or "aggregator"
	Network string `mapstructure:"network"`

	// uniswap_v3
	QuoterAddress string            `mapstructure:"quoter_address"`
	FeeTier       int               `mapstructure:"fee_tier"`
	Pools         map[string]string `mapstructure:"pools"` // pair -> pool address, used for liquidity
	ProbeAmount   float64           `mapstructure:"probe_amount"`

	// aggregator
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	RateLimitPerMinute int    `mapstructure:"rate_limit_per_minute"`
}

// QuoterAddressHex returns the quoter address as common.Address.
func (e *ExchangeConfig) QuoterAddressHex() common.Address {
	return common.HexToAddress(e.QuoterAddress)
}

// FeedsConfig controls the price collector.
type FeedsConfig struct {
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	PollTimeout            time.Duration `mapstructure:"poll_timeout"`
	StaleMultiple          int           `mapstructure:"stale_multiple"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	RecordQuotes           bool          `mapstructure:"record_quotes"`
}

// StaleAfter is the age beyond which a quote is excluded from comparisons.
func (c *FeedsConfig) StaleAfter() time.Duration {
	return c.PollInterval * time.Duration(c.StaleMultiple)
}

// DetectorConfig holds opportunity construction parameters.
type DetectorConfig struct {
	MinSpread        float64       `mapstructure:"min_spread"`
	MinLiquidity     float64       `mapstructure:"min_liquidity"`
	MaxTradeSize     float64       `mapstructure:"max_trade_size"`
	MinTradeSize     float64       `mapstructure:"min_trade_size"`
	MaxPriceImpact   float64       `mapstructure:"max_price_impact"`
	SizingIterations int           `mapstructure:"sizing_iterations"`
	FlashLoanFeeBps  float64       `mapstructure:"flash_loan_fee_bps"`
	AmountPrecision  int32         `mapstructure:"amount_precision"`
	TimeBucket       time.Duration `mapstructure:"time_bucket"`
}

// ThresholdConfig is a full threshold set.
type ThresholdConfig struct {
	MaxSlippage          float64       `mapstructure:"max_slippage"`
	MaxFrontRunRisk      float64       `mapstructure:"max_front_run_risk"`
	MaxCongestion        float64       `mapstructure:"max_congestion"`
	MaxBridgeFeePct      float64       `mapstructure:"max_bridge_fee_pct"`
	MaxBridgeTime        time.Duration `mapstructure:"max_bridge_time"`
	MinBridgeReliability float64       `mapstructure:"min_bridge_reliability"`
	MinProfit            float64       `mapstructure:"min_profit"`
	MinProfitAfterGasPct float64       `mapstructure:"min_profit_after_gas_pct"`
	MinScore             float64       `mapstructure:"min_score"`
}

// ThresholdOverride is a partial threshold set; nil fields inherit.
type ThresholdOverride struct {
	MaxSlippage          *float64       `mapstructure:"max_slippage"`
	MaxFrontRunRisk      *float64       `mapstructure:"max_front_run_risk"`
	MaxCongestion        *float64       `mapstructure:"max_congestion"`
	MaxBridgeFeePct      *float64       `mapstructure:"max_bridge_fee_pct"`
	MaxBridgeTime        *time.Duration `mapstructure:"max_bridge_time"`
	MinBridgeReliability *float64       `mapstructure:"min_bridge_reliability"`
	MinProfit            *float64       `mapstructure:"min_profit"`
	MinProfitAfterGasPct *float64       `mapstructure:"min_profit_after_gas_pct"`
	MinScore             *float64       `mapstructure:"min_score"`
}

// WeightsConfig weighs the composite score factors.
type WeightsConfig struct {
	Confidence  float64 `mapstructure:"confidence"`
	SuccessRate float64 `mapstructure:"success_rate"`
	Profit      float64 `mapstructure:"profit"`
}

// CongestionBand scales profit floors when congestion crosses Level.
type CongestionBand struct {
	Level                       float64 `mapstructure:"level"`
	MinProfitMultiplier         float64 `mapstructure:"min_profit_multiplier"`
	MinProfitAfterGasMultiplier float64 `mapstructure:"min_profit_after_gas_multiplier"`
}

// AdaptiveConfig enables congestion-aware thresholds.
type AdaptiveConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	High    CongestionBand `mapstructure:"high_congestion"`
	Low     CongestionBand `mapstructure:"low_congestion"`
}

// PortfolioConfig enables exposure-aware sizing.
type PortfolioConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Capacity float64 `mapstructure:"capacity"` // notional treated as 100% exposure
}

// ABTestingConfig routes a share of opportunities to a variant threshold layer.
type ABTestingConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	SplitPercent int               `mapstructure:"split_percent"`
	VariantB     ThresholdOverride `mapstructure:"variant_b"`
}

// MLConfig gates verdicts on an external model score.
type MLConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	MinScore float64 `mapstructure:"min_score"`
}

// ValidatorConfig holds the profitability gate configuration.
type ValidatorConfig struct {
	Defaults         ThresholdConfig              `mapstructure:"defaults"`
	PairOverrides    map[string]ThresholdOverride `mapstructure:"pair_overrides"`
	DEXOverrides     map[string]ThresholdOverride `mapstructure:"dex_overrides"`
	NetworkOverrides map[string]ThresholdOverride `mapstructure:"network_overrides"`
	Weights          WeightsConfig                `mapstructure:"weights"`
	ReferenceProfit  float64                      `mapstructure:"reference_profit"`
	Adaptive         AdaptiveConfig               `mapstructure:"adaptive"`
	Portfolio        PortfolioConfig              `mapstructure:"portfolio"`
	CacheTTL         time.Duration                `mapstructure:"cache_ttl"`
	ABTesting        ABTestingConfig              `mapstructure:"ab_testing"`
	ML               MLConfig                     `mapstructure:"ml"`
}

// RiskConfig holds the hard safety envelope.
type RiskConfig struct {
	MaxTradeSize             float64       `mapstructure:"max_trade_size"`
	MaxDailyVolume           float64       `mapstructure:"max_daily_volume"`
	MaxDailyTrades           int           `mapstructure:"max_daily_trades"`
	Cooldown                 time.Duration `mapstructure:"cooldown"`
	MaxGasPriceGwei          float64       `mapstructure:"max_gas_price_gwei"`
	Blacklist                []string      `mapstructure:"blacklist"`
	Whitelist                []string      `mapstructure:"whitelist"`
	WhitelistOnly            bool          `mapstructure:"whitelist_only"`
	RequireConfirmationAbove float64       `mapstructure:"require_confirmation_above"`
	DailyResetOffset         time.Duration `mapstructure:"daily_reset_offset"`
}

// ExecutionConfig controls the execution coordinator.
type ExecutionConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ReceiptPoll         time.Duration `mapstructure:"receipt_poll"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	QuarantineWindow    time.Duration `mapstructure:"quarantine_window"`
	ReportRollbacks     bool          `mapstructure:"report_rollbacks"`
	PrivateKey          string        `mapstructure:"private_key"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
}

// ScannerConfig controls the detection cycle.
type ScannerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ScorerConfig points at the external scoring service.
type ScorerConfig struct {
	URL                 string        `mapstructure:"url"`
	Timeout             time.Duration `mapstructure:"timeout"`
	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	DefaultConfidence   float64       `mapstructure:"default_confidence"`
	DefaultSuccessRate  float64       `mapstructure:"default_success_rate"`
	DefaultFrontRunRisk float64       `mapstructure:"default_front_run_risk"`
	DefaultModelScore   float64       `mapstructure:"default_model_score"`
}

// BridgeConfig is a static estimate for moving funds between two networks.
type BridgeConfig struct {
	From         string        `mapstructure:"from"`
	To           string        `mapstructure:"to"`
	FeePct       float64       `mapstructure:"fee_pct"`
	TransferTime time.Duration `mapstructure:"transfer_time"`
	Reliability  float64       `mapstructure:"reliability"`
}

// PostgresConfig holds persistence settings.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// RedisConfig holds event publishing settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// APIConfig holds the query API settings.
type APIConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceProvider  string `mapstructure:"trace_provider"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Network returns the named network configuration.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return NetworkConfig{}, false
}

// Map keys pass through viper lowercased, so override lookups fold case.

// PairOverride returns the override for pair, if any.
func (c *ValidatorConfig) PairOverride(pair string) (ThresholdOverride, bool) {
	return lookupFold(c.PairOverrides, pair)
}

// DEXOverride returns the override for an exchange, if any.
func (c *ValidatorConfig) DEXOverride(exchange string) (ThresholdOverride, bool) {
	return lookupFold(c.DEXOverrides, exchange)
}

// NetworkOverride returns the override for a network, if any.
func (c *ValidatorConfig) NetworkOverride(network string) (ThresholdOverride, bool) {
	return lookupFold(c.NetworkOverrides, network)
}

// Pool returns the pool address configured for pair.
func (e *ExchangeConfig) Pool(pair string) (string, bool) {
	return lookupFold(e.Pools, pair)
}

func lookupFold[V any](m map[string]V, key string) (V, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	v, ok := m[strings.ToLower(key)]
	return v, ok
}

// Decimal converts a config float into a decimal.
func Decimal(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apperror.New(apperror.CodeConfigurationError,
				apperror.WithCause(err),
				apperror.WithContext("read config"))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithCause(err),
			apperror.WithContext("unmarshal config"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")

	v.BindEnv("execution.private_key", "ARB_EXECUTOR_PRIVATE_KEY")
	v.BindEnv("execution.enabled", "ARB_EXECUTION_ENABLED")

	v.BindEnv("scorer.url", "ARB_SCORER_URL")

	v.BindEnv("postgres.dsn", "ARB_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("postgres.enabled", "ARB_POSTGRES_ENABLED")
	v.BindEnv("redis.addr", "ARB_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "ARB_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("redis.enabled", "ARB_REDIS_ENABLED")

	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "flashloan-arbitrage")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("pairs", []string{"WETH-USDC"})

	v.SetDefault("feeds.poll_interval", "2s")
	v.SetDefault("feeds.poll_timeout", "1500ms")
	v.SetDefault("feeds.stale_multiple", 3)
	v.SetDefault("feeds.max_consecutive_failures", 10)
	v.SetDefault("feeds.record_quotes", false)

	v.SetDefault("detector.min_spread", 0.001)
	v.SetDefault("detector.min_liquidity", 100000)
	v.SetDefault("detector.max_trade_size", 10)
	v.SetDefault("detector.min_trade_size", 0.01)
	v.SetDefault("detector.max_price_impact", 0.005)
	v.SetDefault("detector.sizing_iterations", 24)
	v.SetDefault("detector.flash_loan_fee_bps", 5)
	v.SetDefault("detector.amount_precision", 2)
	v.SetDefault("detector.time_bucket", "10s")

	v.SetDefault("validator.defaults.max_slippage", 0.01)
	v.SetDefault("validator.defaults.max_front_run_risk", 0.5)
	v.SetDefault("validator.defaults.max_congestion", 0.9)
	v.SetDefault("validator.defaults.max_bridge_fee_pct", 0.003)
	v.SetDefault("validator.defaults.max_bridge_time", "10m")
	v.SetDefault("validator.defaults.min_bridge_reliability", 0.95)
	v.SetDefault("validator.defaults.min_profit", 10)
	v.SetDefault("validator.defaults.min_profit_after_gas_pct", 0.001)
	v.SetDefault("validator.defaults.min_score", 0.5)
	v.SetDefault("validator.weights.confidence", 0.4)
	v.SetDefault("validator.weights.success_rate", 0.3)
	v.SetDefault("validator.weights.profit", 0.3)
	v.SetDefault("validator.reference_profit", 100)
	v.SetDefault("validator.adaptive.enabled", true)
	v.SetDefault("validator.adaptive.high_congestion.level", 0.7)
	v.SetDefault("validator.adaptive.high_congestion.min_profit_multiplier", 2)
	v.SetDefault("validator.adaptive.high_congestion.min_profit_after_gas_multiplier", 1.5)
	v.SetDefault("validator.adaptive.low_congestion.level", 0.3)
	v.SetDefault("validator.adaptive.low_congestion.min_profit_multiplier", 0.8)
	v.SetDefault("validator.adaptive.low_congestion.min_profit_after_gas_multiplier", 0.8)
	v.SetDefault("validator.portfolio.enabled", true)
	v.SetDefault("validator.portfolio.capacity", 200000)
	v.SetDefault("validator.cache_ttl", "5s")
	v.SetDefault("validator.ab_testing.enabled", false)
	v.SetDefault("validator.ab_testing.split_percent", 50)
	v.SetDefault("validator.ml.enabled", false)
	v.SetDefault("validator.ml.min_score", 0.6)

	v.SetDefault("risk.max_trade_size", 50000)
	v.SetDefault("risk.max_daily_volume", 500000)
	v.SetDefault("risk.max_daily_trades", 50)
	v.SetDefault("risk.cooldown", "30s")
	v.SetDefault("risk.max_gas_price_gwei", 200)
	v.SetDefault("risk.whitelist_only", false)
	v.SetDefault("risk.require_confirmation_above", 100000)
	v.SetDefault("risk.daily_reset_offset", "0s")

	v.SetDefault("execution.enabled", false)
	v.SetDefault("execution.max_concurrent", 4)
	v.SetDefault("execution.confirm_timeout", "60s")
	v.SetDefault("execution.receipt_poll", "2s")
	v.SetDefault("execution.max_attempts", 3)
	v.SetDefault("execution.retry_initial_backoff", "500ms")
	v.SetDefault("execution.retry_max_backoff", "8s")
	v.SetDefault("execution.quarantine_window", "5m")
	v.SetDefault("execution.report_rollbacks", false)
	v.SetDefault("execution.gas_limit", 600000)

	v.SetDefault("scanner.interval", "1s")

	v.SetDefault("scorer.timeout", "500ms")
	v.SetDefault("scorer.cache_ttl", "30s")
	v.SetDefault("scorer.default_confidence", 0.7)
	v.SetDefault("scorer.default_success_rate", 0.6)
	v.SetDefault("scorer.default_front_run_risk", 0.2)
	v.SetDefault("scorer.default_model_score", 0.5)

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.max_conns", 8)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.channel", "arb:executions")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.port", 8080)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "flashloan-arbitrage")
	v.SetDefault("telemetry.trace_provider", "zipkin")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate checks every threshold the pipeline depends on.
// Any failure is a CONFIGURATION_ERROR; the process must not start.
func (c *Config) Validate() error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	networks := make(map[string]bool, len(c.Networks))
	if len(c.Networks) == 0 {
		fail("networks cannot be empty")
	}
	for _, n := range c.Networks {
		if n.Name == "" || n.RPCURL == "" {
			fail("network %q requires name and rpc_url", n.Name)
		}
		if networks[n.Name] {
			fail("duplicate network %q", n.Name)
		}
		networks[n.Name] = true
		if n.ExecutorAddress != "" && !common.IsHexAddress(n.ExecutorAddress) {
			fail("invalid networks[%s].executor_address: %s", n.Name, n.ExecutorAddress)
		}
		if n.GasUnits == 0 {
			fail("networks[%s].gas_units must be > 0", n.Name)
		}
		if n.GasBuffer < 1 {
			fail("networks[%s].gas_buffer must be >= 1", n.Name)
		}
	}

	for _, tk := range c.Tokens {
		if !networks[tk.Network] {
			fail("token %s references unknown network %q", tk.Symbol, tk.Network)
		}
		if !common.IsHexAddress(tk.Address) {
			fail("invalid token address for %s: %s", tk.Symbol, tk.Address)
		}
	}

	if len(c.Pairs) == 0 {
		fail("pairs cannot be empty")
	}
	for _, p := range c.Pairs {
		if parts := strings.Split(p, "-"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			fail("invalid pair %q, expected BASE-QUOTE", p)
		}
	}

	if len(c.Exchanges) < 2 {
		fail("at least two exchanges are required")
	}
	names := make(map[string]bool, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		if names[ex.Name] {
			fail("duplicate exchange %q", ex.Name)
		}
		names[ex.Name] = true
		if !networks[ex.Network] {
			fail("exchange %s references unknown network %q", ex.Name, ex.Network)
		}
		switch ex.Kind {
		case "uniswap_v3":
			if !common.IsHexAddress(ex.QuoterAddress) {
				fail("invalid quoter_address for %s: %s", ex.Name, ex.QuoterAddress)
			}
		case "aggregator":
			if ex.BaseURL == "" {
				fail("exchange %s requires base_url", ex.Name)
			}
		default:
			fail("exchange %s has unknown kind %q", ex.Name, ex.Kind)
		}
	}

	if c.Feeds.PollInterval <= 0 || c.Feeds.PollTimeout <= 0 {
		fail("feeds.poll_interval and feeds.poll_timeout must be > 0")
	}
	if c.Feeds.PollTimeout > c.Feeds.PollInterval {
		fail("feeds.poll_timeout must not exceed feeds.poll_interval")
	}
	if c.Feeds.StaleMultiple < 1 {
		fail("feeds.stale_multiple must be >= 1")
	}

	d := c.Detector
	if d.MinSpread <= 0 {
		fail("detector.min_spread must be > 0")
	}
	if d.MaxPriceImpact <= 0 || d.MaxPriceImpact >= 1 {
		fail("detector.max_price_impact must be in (0,1)")
	}
	if d.MaxTradeSize <= 0 || d.MinTradeSize < 0 || d.MinTradeSize > d.MaxTradeSize {
		fail("detector trade size bounds are inconsistent")
	}
	if d.SizingIterations < 1 {
		fail("detector.sizing_iterations must be >= 1")
	}
	if d.TimeBucket <= 0 {
		fail("detector.time_bucket must be > 0")
	}

	w := c.Validator.Weights
	sum := decimal.NewFromFloat(w.Confidence).Add(decimal.NewFromFloat(w.SuccessRate)).Add(decimal.NewFromFloat(w.Profit))
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.RequireFromString("0.0001")) {
		fail("validator.weights must sum to 1, got %s", sum)
	}
	if c.Validator.ReferenceProfit <= 0 {
		fail("validator.reference_profit must be > 0")
	}
	if c.Validator.CacheTTL <= 0 {
		fail("validator.cache_ttl must be > 0")
	}
	if a := c.Validator.Adaptive; a.Enabled && a.Low.Level >= a.High.Level {
		fail("validator.adaptive low_congestion.level must be below high_congestion.level")
	}
	if c.Validator.Portfolio.Enabled && c.Validator.Portfolio.Capacity <= 0 {
		fail("validator.portfolio.capacity must be > 0")
	}
	if ab := c.Validator.ABTesting; ab.Enabled && (ab.SplitPercent < 0 || ab.SplitPercent > 100) {
		fail("validator.ab_testing.split_percent must be in [0,100]")
	}

	r := c.Risk
	if r.MaxTradeSize <= 0 || r.MaxDailyVolume <= 0 || r.MaxDailyTrades <= 0 {
		fail("risk limits must be > 0")
	}
	if r.WhitelistOnly && len(r.Whitelist) == 0 {
		fail("risk.whitelist_only requires a non-empty whitelist")
	}

	e := c.Execution
	if e.MaxConcurrent < 1 || e.MaxAttempts < 1 {
		fail("execution.max_concurrent and execution.max_attempts must be >= 1")
	}
	if e.ConfirmTimeout <= 0 {
		fail("execution.confirm_timeout must be > 0")
	}
	if e.Enabled && e.PrivateKey == "" {
		fail("execution.private_key is required when execution is enabled")
	}

	if c.Scanner.Interval <= 0 {
		fail("scanner.interval must be > 0")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		fail("postgres.dsn is required when postgres is enabled")
	}

	if len(problems) > 0 {
		return apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(strings.Join(problems, "; ")))
	}
	return nil
}
