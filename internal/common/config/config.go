package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/authgrid/authgrid/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// Config is the root authgrid configuration.
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Logger  LoggerConfig  `yaml:"logger"`
		Storage StorageConfig `yaml:"storage"`
		JWT     JWTConfig     `yaml:"jwt"`
		OAuth   OAuthConfig   `yaml:"oauth"`
		Events  EventsConfig  `yaml:"events"`
		Metrics MetricsConfig `yaml:"metrics"`
	}

	// ServerConfig represents the HTTP listener configuration
	ServerConfig struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps
		TimeFormat string `yaml:"time_format"` // time format for log timestamps
	}

	// StorageConfig selects and configures the persistence backend
	StorageConfig struct {
		Type     string         `yaml:"type"` // memory, redis, sqlite, mysql, postgres
		Redis    RedisConfig    `yaml:"redis"`
		Database DatabaseConfig `yaml:"database"`
	}

	// RedisConfig represents a Redis connection
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	// DatabaseConfig represents a SQL database connection
	DatabaseConfig struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"` // database name, or file path for sqlite
		SSLMode  string `yaml:"sslmode"`
	}

	// JWTConfig configures access-token signing
	JWTConfig struct {
		SecretKey string `yaml:"secret_key"`
		Issuer    string `yaml:"issuer"`
	}

	// OAuthConfig holds the protocol policy knobs
	OAuthConfig struct {
		AccessTokenTTL       time.Duration `yaml:"access_token_ttl"`
		RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl"`
		AuthorizationCodeTTL time.Duration `yaml:"authorization_code_ttl"`
		RefreshTokenRotation bool          `yaml:"refresh_token_rotation"`
		AllowArbitraryScopes bool          `yaml:"allow_arbitrary_scopes"`
	}

	// EventsConfig configures the lifecycle event bus
	EventsConfig struct {
		Enabled    bool        `yaml:"enabled"`
		Backend    string      `yaml:"backend"` // memory or redis
		Topic      string      `yaml:"topic"`
		EventTypes []string    `yaml:"event_types"` // allow-list; empty means all
		Redis      RedisConfig `yaml:"redis"`
	}

	// MetricsConfig configures the Prometheus registry
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}
)

// GetDSN returns the connection string for the configured SQL backend.
func (c *DatabaseConfig) GetDSN(dbType string) string {
	switch dbType {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		// For SQLite, DBName is the file path.
		if dir := filepath.Dir(c.DBName); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				panic(fmt.Errorf("failed to create directory for sqlite database: %w", err))
			}
		}
		return c.DBName
	default:
		return ""
	}
}

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*Config, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

// setDefaults fills the TTL and listener defaults the protocol mandates.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.OAuth.AccessTokenTTL <= 0 {
		c.OAuth.AccessTokenTTL = time.Hour
	}
	if c.OAuth.RefreshTokenTTL <= 0 {
		c.OAuth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.OAuth.AuthorizationCodeTTL <= 0 {
		c.OAuth.AuthorizationCodeTTL = 10 * time.Minute
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "authgrid"
	}
	if c.Events.Backend == "" {
		c.Events.Backend = "memory"
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "authgrid:events"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "authgrid"
	}
}

// Validate rejects configurations that are unsafe to run with.
func (c *Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secret_key must be set")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("jwt.secret_key must be at least 32 characters (got %d)", len(c.JWT.SecretKey))
	}
	switch c.Storage.Type {
	case "memory", "redis", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	return nil
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
