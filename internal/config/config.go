// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chiphouse/internal/game/ladder"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Games    GamesConfig    `mapstructure:"games"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds redis connection configuration, used when the
// session backend is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SessionsConfig selects and configures the session store backend.
type SessionsConfig struct {
	// Backend is one of "memory", "file" or "redis".
	Backend string `mapstructure:"backend"`
	// FilePath is the signed store location for the file backend.
	FilePath string `mapstructure:"file_path"`
	// Secret keys the HMAC signature of the file backend.
	Secret string `mapstructure:"secret"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Blackjack StakeConfig  `mapstructure:"blackjack"`
	Baccarat  StakeConfig  `mapstructure:"baccarat"`
	Roulette  StakeConfig  `mapstructure:"roulette"`
	Mines     StakeConfig  `mapstructure:"mines"`
	Crash     CrashConfig  `mapstructure:"crash"`
	Ladder    LadderConfig `mapstructure:"ladder"`
	Poker     PokerConfig  `mapstructure:"poker"`
}

// StakeConfig bounds the stake of a game.
type StakeConfig struct {
	MinStake int64 `mapstructure:"min_stake"`
	MaxStake int64 `mapstructure:"max_stake"`
}

// CrashConfig holds crash game configuration.
type CrashConfig struct {
	MinStake  int64   `mapstructure:"min_stake"`
	MaxStake  int64   `mapstructure:"max_stake"`
	HouseEdge float64 `mapstructure:"house_edge"`
}

// LadderConfig holds lucky ladder configuration. An empty Steps list
// selects the built-in ladder table.
type LadderConfig struct {
	MinStake int64         `mapstructure:"min_stake"`
	MaxStake int64         `mapstructure:"max_stake"`
	Steps    []ladder.Step `mapstructure:"steps"`
}

// PokerConfig holds poker relay configuration.
type PokerConfig struct {
	MaxDelta int64 `mapstructure:"max_delta"`
}

// Addr returns the server listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., SERVER_PORT, DATABASE_HOST, SESSIONS_SECRET
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "chiphouse")
	v.SetDefault("database.name", "chiphouse")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Session store defaults. The secret default is empty so the env
	// override is visible to Unmarshal; the file backend rejects it.
	v.SetDefault("sessions.backend", "file")
	v.SetDefault("sessions.file_path", "sessions.db")
	v.SetDefault("sessions.secret", "")

	// Game defaults
	for _, g := range []string{"blackjack", "baccarat", "roulette", "mines", "crash", "ladder"} {
		v.SetDefault("games."+g+".min_stake", 1)
		v.SetDefault("games."+g+".max_stake", 10000)
	}
	v.SetDefault("games.crash.house_edge", 0.97)
	v.SetDefault("games.poker.max_delta", 100000)
}
