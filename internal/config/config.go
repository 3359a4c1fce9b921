package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Import   ImportConfig   `mapstructure:"import"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool sizing. Each import request holds one connection for its batch.
	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig controls the reference-data cache used for lookup resolution.
// When Enabled is false the cache lives in process memory only.
type CacheConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	ReferenceTTL int  `mapstructure:"reference_ttl"`
}

// ImportConfig holds mass upload limits
type ImportConfig struct {
	BatchSize         int   `mapstructure:"batch_size"`
	MaxReportedErrors int   `mapstructure:"max_reported_errors"`
	MaxUploadBytes    int64 `mapstructure:"max_upload_bytes"`
}

// AuthConfig holds token settings for caller identity
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	TokenTTL  int    `mapstructure:"token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// SecurityConfig holds CORS and rate-limit settings for the HTTP API
type SecurityConfig struct {
	AllowedOrigins    []string `mapstructure:"allowed_origins"`
	RateLimitRequests int      `mapstructure:"rate_limit_requests"`
	RateLimitWindow   int      `mapstructure:"rate_limit_window"`
}

// LoadConfig loads configuration from environment and config files
func LoadConfig() (*Config, error) {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 60)
	viper.SetDefault("server.idle_timeout", 120)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.reference_ttl", 300)
	viper.SetDefault("import.batch_size", 100)
	viper.SetDefault("import.max_reported_errors", 50)
	viper.SetDefault("import.max_upload_bytes", 5<<20)
	viper.SetDefault("auth.jwt_secret", "change-me")
	viper.SetDefault("auth.token_ttl", 28800)
	viper.SetDefault("auth.issuer", "site-mass-upload")
	viper.SetDefault("security.allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("security.rate_limit_requests", 120)
	viper.SetDefault("security.rate_limit_window", 60)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
