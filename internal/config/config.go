package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"peakwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Bybit     BybitConfig     `mapstructure:"bybit"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the background alert cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// BybitConfig covers exchange connectivity and credentials.
type BybitConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Category       string        `mapstructure:"category"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	Testnet        bool          `mapstructure:"testnet"`
	BalanceCoin    string        `mapstructure:"balance_coin"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// WatchConfig defines what is analysed and how levels are derived.
type WatchConfig struct {
	Symbol     string  `mapstructure:"symbol"`
	Interval   string  `mapstructure:"interval"`
	Limit      int     `mapstructure:"limit"`
	ClusterEps float64 `mapstructure:"cluster_eps"`
	AlertPct   float64 `mapstructure:"alert_pct"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds bot credentials and routing.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
	Commands bool   `mapstructure:"commands"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PEAKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "peakwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x70656b77))
	v.SetDefault("scheduler.startup_delay", "5s")

	v.SetDefault("bybit.base_url", "https://api.bybit.com")
	v.SetDefault("bybit.category", "spot")
	v.SetDefault("bybit.balance_coin", "USDT")
	v.SetDefault("bybit.request_timeout", "10s")
	v.SetDefault("bybit.user_agent", "peakwatch/1.0")

	v.SetDefault("watch.symbol", "BTCUSDT")
	v.SetDefault("watch.interval", "1")
	v.SetDefault("watch.limit", 200)
	v.SetDefault("watch.cluster_eps", 0.008)
	v.SetDefault("watch.alert_pct", 0.002)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.commands", true)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Everything the level pipeline assumes about its inputs is enforced here.
func (c *Config) Validate() error {
	if c.Watch.Symbol == "" {
		return fmt.Errorf("watch.symbol must be set")
	}
	if c.Watch.Interval == "" {
		return fmt.Errorf("watch.interval must be set")
	}
	if c.Watch.Limit < 3 {
		return fmt.Errorf("watch.limit must be at least 3 (fewer candles yield no extrema)")
	}
	if c.Watch.ClusterEps <= 0 || c.Watch.ClusterEps >= 1 {
		return fmt.Errorf("watch.cluster_eps must be within (0,1)")
	}
	if c.Watch.AlertPct <= 0 || c.Watch.AlertPct >= 1 {
		return fmt.Errorf("watch.alert_pct must be within (0,1)")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// BybitEndpoint returns the REST base URL, honouring the testnet switch when
// no explicit base URL override is present.
func (c *Config) BybitEndpoint() string {
	if c.Bybit.Testnet && c.Bybit.BaseURL == "https://api.bybit.com" {
		return "https://api-testnet.bybit.com"
	}
	return c.Bybit.BaseURL
}
