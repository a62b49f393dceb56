package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"bidding-core/internal/domain"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Analytics   AnalyticsConfig   `mapstructure:"analytics"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Store       StoreConfig       `mapstructure:"store"`
	Leader      LeaderConfig      `mapstructure:"leader"`
	Instance    InstanceConfig    `mapstructure:"instance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Bidding     BiddingConfig     `mapstructure:"bidding"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Events      EventsConfig      `mapstructure:"events"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Currency    CurrencyConfig    `mapstructure:"currency"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WebSocketConfig struct {
	Port           int           `mapstructure:"port"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type AnalyticsConfig struct {
	Port int `mapstructure:"port"`
}

type RedisConfig struct {
	Address     string        `mapstructure:"address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// StoreConfig selects the auction store. "memory" keeps everything in process
// and only suits a single instance.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type LeaderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type BiddingConfig struct {
	LockTimeout      time.Duration          `mapstructure:"lock_timeout"`
	LockShards       int                    `mapstructure:"lock_shards"`
	AntiSnipeWindow  time.Duration          `mapstructure:"anti_snipe_window"`
	ExtensionPeriod  time.Duration          `mapstructure:"extension_period"`
	MaxExtensions    int                    `mapstructure:"max_extensions"`
	AllowPastStart   bool                   `mapstructure:"allow_past_start"`
	DefaultIncrement int64                  `mapstructure:"default_increment"`
	IncrementTiers   []domain.IncrementTier `mapstructure:"increment_tiers"`
}

type SchedulerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
}

type EventsConfig struct {
	DispatcherShards int `mapstructure:"dispatcher_shards"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type CurrencyConfig struct {
	Code     string `mapstructure:"code"`
	Exponent int32  `mapstructure:"exponent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("websocket.port", 8081)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("analytics.port", 8082)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.snapshot_ttl", time.Hour)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("mysql.auto_migrate", true)
	v.SetDefault("store.driver", "mysql")
	v.SetDefault("leader.enabled", true)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("logging.level", "info")
	v.SetDefault("bidding.lock_timeout", 2*time.Second)
	v.SetDefault("bidding.lock_shards", 64)
	v.SetDefault("bidding.anti_snipe_window", 2*time.Minute)
	v.SetDefault("bidding.extension_period", 2*time.Minute)
	v.SetDefault("bidding.max_extensions", 0)
	v.SetDefault("bidding.allow_past_start", false)
	v.SetDefault("bidding.default_increment", 1000)
	v.SetDefault("scheduler.interval", 1*time.Second)
	v.SetDefault("scheduler.concurrency", 16)
	v.SetDefault("events.dispatcher_shards", 16)
	v.SetDefault("events.subscriber_buffer", 64)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("currency.code", "KRW")
	v.SetDefault("currency.exponent", 0)
}

func bindEnv(v *viper.Viper) {
	// Environment variable mappings
	bindings := map[string]string{
		"server.port":               "SERVER_PORT",
		"server.host":               "SERVER_HOST",
		"websocket.port":            "WEBSOCKET_PORT",
		"analytics.port":            "ANALYTICS_PORT",
		"redis.address":             "REDIS_ADDRESS",
		"redis.password":            "REDIS_PASSWORD",
		"redis.db":                  "REDIS_DB",
		"mysql.dsn":                 "MYSQL_DSN",
		"mysql.max_open_conns":      "MYSQL_MAX_OPEN_CONNS",
		"mysql.max_idle_conns":      "MYSQL_MAX_IDLE_CONNS",
		"mysql.conn_max_lifetime":   "MYSQL_CONN_MAX_LIFETIME",
		"mysql.auto_migrate":        "MYSQL_AUTO_MIGRATE",
		"store.driver":              "STORE_DRIVER",
		"leader.enabled":            "LEADER_ENABLED",
		"leader.ttl":                "LEADER_TTL",
		"instance.id":               "INSTANCE_ID",
		"logging.level":             "LOG_LEVEL",
		"bidding.lock_timeout":      "BIDDING_LOCK_TIMEOUT",
		"bidding.anti_snipe_window": "BIDDING_ANTI_SNIPE_WINDOW",
		"bidding.extension_period":  "BIDDING_EXTENSION_PERIOD",
		"bidding.max_extensions":    "BIDDING_MAX_EXTENSIONS",
		"scheduler.interval":        "SCHEDULER_INTERVAL",
		"scheduler.concurrency":     "SCHEDULER_CONCURRENCY",
		"idempotency.ttl":           "IDEMPOTENCY_TTL",
		"currency.code":             "CURRENCY_CODE",
		"currency.exponent":         "CURRENCY_EXPONENT",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/bidding-core/")

	v.AutomaticEnv()
	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Bidding.LockTimeout <= 0 {
		return fmt.Errorf("bidding.lock_timeout must be positive, got %s", c.Bidding.LockTimeout)
	}
	if c.Bidding.AntiSnipeWindow < 0 || c.Bidding.ExtensionPeriod < 0 {
		return fmt.Errorf("bidding anti-snipe durations must not be negative")
	}
	if c.Bidding.MaxExtensions < 0 {
		return fmt.Errorf("bidding.max_extensions must not be negative")
	}
	if c.Bidding.DefaultIncrement <= 0 {
		return fmt.Errorf("bidding.default_increment must be positive")
	}
	for _, tier := range c.Bidding.IncrementTiers {
		if tier.Increment <= 0 || tier.From < 0 {
			return fmt.Errorf("invalid increment tier from=%d increment=%d", tier.From, tier.Increment)
		}
	}
	if c.Store.Driver != "mysql" && c.Store.Driver != "memory" {
		return fmt.Errorf("store.driver must be mysql or memory, got %q", c.Store.Driver)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be positive")
	}
	if c.Currency.Exponent < 0 {
		return fmt.Errorf("currency.exponent must not be negative")
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Instance: %s, LockTimeout: %s, AntiSnipe: %s/+%s (max %d)",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Instance.ID,
		c.Bidding.LockTimeout,
		c.Bidding.AntiSnipeWindow,
		c.Bidding.ExtensionPeriod,
		c.Bidding.MaxExtensions,
	)
}
