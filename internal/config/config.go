package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	MySQL         MySQLConfig         `mapstructure:"mysql"`
	Leader        LeaderConfig        `mapstructure:"leader"`
	Instance      InstanceConfig      `mapstructure:"instance"`
	Log           LogConfig           `mapstructure:"log"`
	Store         StoreConfig         `mapstructure:"store"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Auction       AuctionConfig       `mapstructure:"auction"`
	Notifier      NotifierConfig      `mapstructure:"notifier"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LeaderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// StoreConfig selects the AuctionStore backend: "mysql" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// NotificationsConfig selects where notifications go: "redis" or "log".
type NotificationsConfig struct {
	Driver  string `mapstructure:"driver"`
	Channel string `mapstructure:"channel"`
}

type AuctionConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	EnforceReserve   bool          `mapstructure:"enforce_reserve"`
	AllowSelfBid     bool          `mapstructure:"allow_self_bid"`
	TieredIncrements bool          `mapstructure:"tiered_increments"`
}

// NotifierConfig is used by the notification service only.
type NotifierConfig struct {
	Port int `mapstructure:"port"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/auction_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("leader.enabled", true)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "auction-service-1")
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "mysql")
	v.SetDefault("notifications.driver", "redis")
	v.SetDefault("notifications.channel", "auction_notifications")
	v.SetDefault("auction.sweep_interval", time.Minute)
	v.SetDefault("auction.enforce_reserve", false)
	v.SetDefault("auction.allow_self_bid", false)
	v.SetDefault("auction.tiered_increments", false)
	v.SetDefault("notifier.port", 8081)
}

func bindEnv(v *viper.Viper) {
	bindings := map[string]string{
		"server.port":               "SERVER_PORT",
		"server.host":               "SERVER_HOST",
		"redis.address":             "REDIS_ADDRESS",
		"redis.password":            "REDIS_PASSWORD",
		"redis.db":                  "REDIS_DB",
		"mysql.dsn":                 "MYSQL_DSN",
		"mysql.max_open_conns":      "MYSQL_MAX_OPEN_CONNS",
		"mysql.max_idle_conns":      "MYSQL_MAX_IDLE_CONNS",
		"mysql.conn_max_lifetime":   "MYSQL_CONN_MAX_LIFETIME",
		"leader.enabled":            "LEADER_ENABLED",
		"leader.ttl":                "LEADER_TTL",
		"instance.id":               "INSTANCE_ID",
		"log.level":                 "LOG_LEVEL",
		"store.driver":              "STORE_DRIVER",
		"notifications.driver":      "NOTIFICATIONS_DRIVER",
		"notifications.channel":     "NOTIFICATIONS_CHANNEL",
		"auction.sweep_interval":    "AUCTION_SWEEP_INTERVAL",
		"auction.enforce_reserve":   "AUCTION_ENFORCE_RESERVE",
		"auction.allow_self_bid":    "AUCTION_ALLOW_SELF_BID",
		"auction.tiered_increments": "AUCTION_TIERED_INCREMENTS",
		"notifier.port":             "NOTIFIER_PORT",
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
	v.AddConfigPath("/etc/agri-auction/")

	v.AutomaticEnv()
	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
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
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Notifications.Driver {
	case "redis", "log":
	default:
		return fmt.Errorf("config: unknown notifications driver %q", c.Notifications.Driver)
	}
	if c.Auction.SweepInterval < time.Second {
		return fmt.Errorf("config: auction.sweep_interval must be at least 1s, got %s", c.Auction.SweepInterval)
	}
	// the lease is renewed every ttl/3
	if c.Leader.Enabled && c.Leader.TTL < 3*time.Second {
		return fmt.Errorf("config: leader.ttl must be at least 3s when leader election is enabled, got %s", c.Leader.TTL)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Store: %s, Notifications: %s, Instance: %s, Sweep: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Store.Driver,
		c.Notifications.Driver,
		c.Instance.ID,
		c.Auction.SweepInterval,
	)
}
