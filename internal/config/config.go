package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/funding-collector/internal/utils"
)

// DefaultPairs is the starter asset universe used when PAIRS is unset.
var DefaultPairs = []string{"BTC", "ETH", "SOL", "XRP", "BNB"}

var destinationPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

type Config struct {
	Environment     string                `mapstructure:"environment"`
	Exchange        ExchangeConfig        `mapstructure:"exchange"`
	Assets          AssetsConfig          `mapstructure:"assets"`
	Dispatch        DispatchConfig        `mapstructure:"dispatch"`
	ChangeDetection ChangeDetectionConfig `mapstructure:"change_detection"`
	State           StateConfig           `mapstructure:"state"`
	Scheduler       SchedulerConfig       `mapstructure:"scheduler"`
	Bus             BusConfig             `mapstructure:"bus"`
	Redis           RedisConfig           `mapstructure:"redis"`
	Database        DatabaseConfig        `mapstructure:"database"`
	Logging         LoggingConfig         `mapstructure:"logging"`
	Telemetry       TelemetryConfig       `mapstructure:"telemetry"`
	Server          ServerConfig          `mapstructure:"server"`
	Liquidity       LiquidityConfig       `mapstructure:"liquidity"`
}

// ExchangeConfig carries the per-exchange knobs resolved from <PREFIX>_* keys.
type ExchangeConfig struct {
	Name              string   `mapstructure:"name"`
	Prefix            string   `mapstructure:"prefix"`
	BaseURL           string   `mapstructure:"base_url"`
	TimeoutMS         int      `mapstructure:"timeout_ms"`
	Retries           int      `mapstructure:"retries"`
	RetryBaseMS       int      `mapstructure:"retry_base_ms"`
	MarketsCacheTTLMS int      `mapstructure:"markets_cache_ttl_ms"`
	QuotePriority     []string `mapstructure:"quote_priority"`
	MaxConcurrency    int      `mapstructure:"max_concurrency"`
	RateLimitRPS      float64  `mapstructure:"rate_limit_rps"`
	UserAgent         string   `mapstructure:"user_agent"`
	Debug             bool     `mapstructure:"debug"`
}

type AssetsConfig struct {
	Pairs        []string          `mapstructure:"pairs"`
	Allowed      []string          `mapstructure:"allowed"`
	Destinations map[string]string `mapstructure:"-"`
}

type DispatchConfig struct {
	DryRun      bool   `mapstructure:"dry_run"`
	Schema      string `mapstructure:"schema"`
	TagSeconds  bool   `mapstructure:"tag_seconds"`
	SendSleepMS int    `mapstructure:"send_sleep_ms"`
	Retries     int    `mapstructure:"retries"`
	RetryBaseMS int    `mapstructure:"retry_base_ms"`
}

type ChangeDetectionConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FundingAbsEps     float64 `mapstructure:"funding_abs_eps"`
	FundingRelEps     float64 `mapstructure:"funding_rel_eps"`
	NextFundingEpsMS  int64   `mapstructure:"next_funding_eps_ms"`
	MinSendIntervalMS int64   `mapstructure:"min_send_interval_ms"`
}

type StateConfig struct {
	Persist  bool   `mapstructure:"persist"`
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisKey string `mapstructure:"redis_key"`
}

type SchedulerConfig struct {
	IntervalMS int `mapstructure:"interval_ms"`
	JitterMS   int `mapstructure:"jitter_ms"`
	MinDelayMS int `mapstructure:"min_delay_ms"`
}

type BusConfig struct {
	Backend          string `mapstructure:"backend"`
	GatewayURL       string `mapstructure:"gateway_url"`
	GatewayTimeoutMS int    `mapstructure:"gateway_timeout_ms"`
	StreamPrefix     string `mapstructure:"stream_prefix"`
	BreakerThreshold int    `mapstructure:"breaker_threshold"`
	BreakerTimeoutMS int    `mapstructure:"breaker_timeout_ms"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LiquidityConfig is the neutral liquidity reported when an exchange has no open interest figure.
type LiquidityConfig struct {
	PlaceholderLong  float64 `mapstructure:"placeholder_long"`
	PlaceholderShort float64 `mapstructure:"placeholder_short"`
}

// ExchangeDefaults are the variant-specific fallbacks used when no env override exists.
type ExchangeDefaults struct {
	Prefix          string
	BaseURL         string
	MarketsCacheTTL time.Duration
	QuotePriority   []string
}

// envBindings maps nested config keys to the flat environment names operators use.
var envBindings = map[string]string{
	"environment":                           "ENVIRONMENT",
	"assets.pairs":                          "PAIRS",
	"assets.allowed":                        "ALLOWED_PAIRS",
	"dispatch.dry_run":                      "DRY_RUN",
	"dispatch.schema":                       "SCHEMA",
	"dispatch.tag_seconds":                  "TAG_SECONDS",
	"dispatch.send_sleep_ms":                "SEND_SLEEP_MS",
	"dispatch.retries":                      "SEND_RETRIES",
	"dispatch.retry_base_ms":                "SEND_RETRY_BASE_MS",
	"change_detection.enabled":              "SKIP_UNCHANGED",
	"change_detection.funding_abs_eps":      "FUNDING_ABS_EPS",
	"change_detection.funding_rel_eps":      "FUNDING_REL_EPS",
	"change_detection.next_funding_eps_ms":  "NEXT_FUNDING_EPS_MS",
	"change_detection.min_send_interval_ms": "MIN_SEND_INTERVAL_MS",
	"state.persist":                         "PERSIST_LAST_STATE",
	"state.backend":                         "STATE_BACKEND",
	"state.path":                            "LAST_STATE_PATH",
	"state.redis_key":                       "STATE_REDIS_KEY",
	"scheduler.interval_ms":                 "COLLECT_INTERVAL_MS",
	"scheduler.jitter_ms":                   "JITTER_MS",
	"scheduler.min_delay_ms":                "MIN_DELAY_MS",
	"bus.backend":                           "BUS_BACKEND",
	"bus.gateway_url":                       "GATEWAY_URL",
	"bus.gateway_timeout_ms":                "GATEWAY_TIMEOUT_MS",
	"bus.stream_prefix":                     "BUS_STREAM_PREFIX",
	"bus.breaker_threshold":                 "BUS_BREAKER_THRESHOLD",
	"bus.breaker_timeout_ms":                "BUS_BREAKER_TIMEOUT_MS",
	"redis.host":                            "REDIS_HOST",
	"redis.port":                            "REDIS_PORT",
	"redis.password":                        "REDIS_PASSWORD",
	"redis.db":                              "REDIS_DB",
	"database.database_url":                 "DATABASE_URL",
	"database.max_conns":                    "DATABASE_MAX_CONNS",
	"logging.level":                         "LOG_LEVEL",
	"logging.format":                        "LOG_FORMAT",
	"logging.file":                          "LOG_FILE",
	"logging.max_size_mb":                   "LOG_MAX_SIZE_MB",
	"logging.max_backups":                   "LOG_MAX_BACKUPS",
	"logging.max_age_days":                  "LOG_MAX_AGE_DAYS",
	"telemetry.enabled":                     "TELEMETRY_ENABLED",
	"telemetry.exporter":                    "TELEMETRY_EXPORTER",
	"telemetry.endpoint":                    "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.service_name":                "TELEMETRY_SERVICE_NAME",
	"server.addr":                           "STATUS_ADDR",
	"exchange.user_agent":                   "USER_AGENT",
}

// exchangeEnvSuffixes are bound as <PREFIX>_<SUFFIX>.
var exchangeEnvSuffixes = map[string]string{
	"exchange.base_url":             "BASE_URL",
	"exchange.timeout_ms":           "TIMEOUT_MS",
	"exchange.retries":              "RETRIES",
	"exchange.retry_base_ms":        "RETRY_BASE_MS",
	"exchange.markets_cache_ttl_ms": "MARKETS_CACHE_TTL_MS",
	"exchange.quote_priority":       "QUOTE_PRIORITY",
	"exchange.max_concurrency":      "MAX_CONCURRENCY",
	"exchange.rate_limit_rps":       "RATE_LIMIT_RPS",
	"exchange.debug":                "DEBUG",
}

// Load resolves the configuration for one exchange process from defaults,
// an optional config.yaml and the environment, in increasing precedence.
func Load(exchange string, defaults ExchangeDefaults) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v, exchange, defaults)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	for key, suffix := range exchangeEnvSuffixes {
		if err := v.BindEnv(key, defaults.Prefix+"_"+suffix); err != nil {
			return nil, fmt.Errorf("failed to bind %s_%s: %w", defaults.Prefix, suffix, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Environment = strings.ToLower(config.Environment)
	config.Exchange.QuotePriority = ParseList(config.Exchange.QuotePriority)
	config.Assets.Pairs = ParseList(config.Assets.Pairs)
	if len(config.Assets.Pairs) == 0 {
		config.Assets.Pairs = append([]string(nil), DefaultPairs...)
	}
	config.Assets.Allowed = ParseList(config.Assets.Allowed)
	if len(config.Assets.Allowed) == 0 {
		config.Assets.Allowed = append([]string(nil), config.Assets.Pairs...)
	}
	config.Assets.Destinations = resolveDestinations(v, config.Assets)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, exchange string, defaults ExchangeDefaults) {
	v.SetDefault("environment", "development")

	// Exchange
	v.SetDefault("exchange.name", strings.ToLower(exchange))
	v.SetDefault("exchange.prefix", defaults.Prefix)
	v.SetDefault("exchange.base_url", defaults.BaseURL)
	v.SetDefault("exchange.timeout_ms", 7000)
	v.SetDefault("exchange.retries", 2)
	v.SetDefault("exchange.retry_base_ms", 500)
	v.SetDefault("exchange.markets_cache_ttl_ms", int(defaults.MarketsCacheTTL/time.Millisecond))
	v.SetDefault("exchange.quote_priority", strings.Join(defaults.QuotePriority, ","))
	v.SetDefault("exchange.max_concurrency", 3)
	v.SetDefault("exchange.rate_limit_rps", 0)
	v.SetDefault("exchange.user_agent", "funding-collector/1.0")
	v.SetDefault("exchange.debug", false)

	// Assets
	v.SetDefault("assets.pairs", strings.Join(DefaultPairs, ","))
	v.SetDefault("assets.allowed", "")

	// Dispatch
	v.SetDefault("dispatch.dry_run", false)
	v.SetDefault("dispatch.schema", "funding.v1")
	v.SetDefault("dispatch.tag_seconds", false)
	v.SetDefault("dispatch.send_sleep_ms", 0)
	v.SetDefault("dispatch.retries", 2)
	v.SetDefault("dispatch.retry_base_ms", 800)

	// Change detection
	v.SetDefault("change_detection.enabled", true)
	v.SetDefault("change_detection.funding_abs_eps", 0)
	v.SetDefault("change_detection.funding_rel_eps", 0)
	v.SetDefault("change_detection.next_funding_eps_ms", 0)
	v.SetDefault("change_detection.min_send_interval_ms", 0)

	// State
	v.SetDefault("state.persist", false)
	v.SetDefault("state.backend", "file")
	v.SetDefault("state.path", ".last-sent.json")
	v.SetDefault("state.redis_key", "funding:last_sent")

	// Scheduler
	v.SetDefault("scheduler.interval_ms", 300000)
	v.SetDefault("scheduler.jitter_ms", 0)
	v.SetDefault("scheduler.min_delay_ms", 1000)

	// Bus
	v.SetDefault("bus.backend", "gateway")
	v.SetDefault("bus.gateway_url", "http://localhost:8734")
	v.SetDefault("bus.gateway_timeout_ms", 10000)
	v.SetDefault("bus.stream_prefix", "funding:")
	v.SetDefault("bus.breaker_threshold", 5)
	v.SetDefault("bus.breaker_timeout_ms", 60000)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Database
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_conns", 4)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "funding-collector")

	// Server
	v.SetDefault("server.addr", "")

	// Liquidity
	v.SetDefault("liquidity.placeholder_long", 1_000_000)
	v.SetDefault("liquidity.placeholder_short", 1_000_000)
	_ = v.BindEnv("liquidity.placeholder_long", "LIQUIDITY_PLACEHOLDER")
	_ = v.BindEnv("liquidity.placeholder_short", "LIQUIDITY_PLACEHOLDER")
}

// resolveDestinations looks up ANALYSIS_<ASSET>_PROCESS for every configured or allowed asset.
func resolveDestinations(v *viper.Viper, assets AssetsConfig) map[string]string {
	destinations := make(map[string]string)
	for _, asset := range append(append([]string(nil), assets.Pairs...), assets.Allowed...) {
		if _, seen := destinations[asset]; seen {
			continue
		}
		if id := strings.TrimSpace(v.GetString(DestinationKey(asset))); id != "" {
			destinations[asset] = id
		}
	}
	return destinations
}

// DestinationKey is the configuration key holding the destination identifier for asset.
func DestinationKey(asset string) string {
	return "ANALYSIS_" + asset + "_PROCESS"
}

// ParseList normalizes comma separated or pre-split values into uppercase, de-duplicated entries.
func ParseList(values []string) []string {
	upper := cases.Upper(language.Und)
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			item := upper.String(strings.TrimSpace(part))
			if item == "" {
				continue
			}
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// Validate rejects configurations that cannot start a collector.
func (c *Config) Validate() error {
	if c.Exchange.Name == "" {
		return utils.NewConfigErrorf("EXCHANGE", "exchange name is required")
	}
	if c.Exchange.BaseURL == "" {
		return utils.NewConfigErrorf(c.Exchange.Prefix+"_BASE_URL", "base URL is required")
	}
	if len(c.Assets.Allowed) == 0 {
		return utils.NewConfigErrorf("ALLOWED_PAIRS", "allowlist is empty")
	}
	for key, value := range map[string]int{
		c.Exchange.Prefix + "_TIMEOUT_MS":           c.Exchange.TimeoutMS,
		c.Exchange.Prefix + "_RETRIES":              c.Exchange.Retries,
		c.Exchange.Prefix + "_RETRY_BASE_MS":        c.Exchange.RetryBaseMS,
		c.Exchange.Prefix + "_MARKETS_CACHE_TTL_MS": c.Exchange.MarketsCacheTTLMS,
		"SEND_SLEEP_MS":                             c.Dispatch.SendSleepMS,
		"SEND_RETRIES":                              c.Dispatch.Retries,
		"SEND_RETRY_BASE_MS":                        c.Dispatch.RetryBaseMS,
		"COLLECT_INTERVAL_MS":                       c.Scheduler.IntervalMS,
		"JITTER_MS":                                 c.Scheduler.JitterMS,
		"MIN_DELAY_MS":                              c.Scheduler.MinDelayMS,
	} {
		if value < 0 {
			return utils.NewConfigErrorf(key, "must not be negative, got %d", value)
		}
	}
	if c.ChangeDetection.FundingAbsEps < 0 || c.ChangeDetection.FundingRelEps < 0 {
		return utils.NewConfigErrorf("FUNDING_ABS_EPS", "tolerances must not be negative")
	}
	if c.ChangeDetection.NextFundingEpsMS < 0 || c.ChangeDetection.MinSendIntervalMS < 0 {
		return utils.NewConfigErrorf("NEXT_FUNDING_EPS_MS", "tolerances must not be negative")
	}

	switch c.State.Backend {
	case "file", "redis", "postgres":
	default:
		return utils.NewConfigErrorf("STATE_BACKEND", "unknown backend %q", c.State.Backend)
	}
	if c.State.Persist && c.State.Backend == "postgres" && c.Database.DatabaseURL == "" {
		return utils.NewConfigErrorf("DATABASE_URL", "required by the postgres state backend")
	}

	switch c.Bus.Backend {
	case "gateway", "redis":
	default:
		return utils.NewConfigErrorf("BUS_BACKEND", "unknown backend %q", c.Bus.Backend)
	}

	switch c.Telemetry.Exporter {
	case "stdout", "otlp":
	default:
		return utils.NewConfigErrorf("TELEMETRY_EXPORTER", "unknown exporter %q", c.Telemetry.Exporter)
	}

	return nil
}

// SuspiciousDestinations returns the assets whose destination id does not look like a process id.
func (c *Config) SuspiciousDestinations() []string {
	var assets []string
	for _, asset := range c.Assets.Allowed {
		id, ok := c.Assets.Destinations[asset]
		if ok && !destinationPattern.MatchString(id) {
			assets = append(assets, asset)
		}
	}
	return assets
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMS) * time.Millisecond
}

func (e ExchangeConfig) RetryBaseDelay() time.Duration {
	return time.Duration(e.RetryBaseMS) * time.Millisecond
}

func (e ExchangeConfig) MarketsCacheTTL() time.Duration {
	return time.Duration(e.MarketsCacheTTLMS) * time.Millisecond
}

func (d DispatchConfig) SendSleep() time.Duration {
	return time.Duration(d.SendSleepMS) * time.Millisecond
}

func (d DispatchConfig) RetryBaseDelay() time.Duration {
	return time.Duration(d.RetryBaseMS) * time.Millisecond
}

func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMS) * time.Millisecond
}

func (s SchedulerConfig) Jitter() time.Duration {
	return time.Duration(s.JitterMS) * time.Millisecond
}

func (s SchedulerConfig) MinDelay() time.Duration {
	return time.Duration(s.MinDelayMS) * time.Millisecond
}

func (b BusConfig) GatewayTimeout() time.Duration {
	return time.Duration(b.GatewayTimeoutMS) * time.Millisecond
}

func (b BusConfig) BreakerTimeout() time.Duration {
	return time.Duration(b.BreakerTimeoutMS) * time.Millisecond
}
