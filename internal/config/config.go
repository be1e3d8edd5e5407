package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the companion server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Session  SessionConfig  `yaml:"session"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	CORS     CORSConfig     `yaml:"cors"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig points at the rehab backend REST API
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	Key string `yaml:"key"`
}

// CacheConfig selects where the session pair is persisted
type CacheConfig struct {
	Type     string `yaml:"type"` // memory, redis or file
	FilePath string `yaml:"file_path"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig configures the optional audit journal
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	LogLevel string `yaml:"log_level"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{Key: "portal:session"},
		Cache:   CacheConfig{Type: "memory", FilePath: "data/session.json"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			DBName:   "rehab_portal",
			SSLMode:  "disable",
			LogLevel: "warn",
		},
		Log: LogConfig{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 30},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load reads .env (if present), the yaml file named by PORTAL_CONFIG (if
// set) and then environment overrides, in that order
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	c := Default()

	if path := os.Getenv("PORTAL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	envOverride(&c.Server.Host, "SERVER_HOST")
	envOverrideInt(&c.Server.Port, "SERVER_PORT")
	envOverrideDuration(&c.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	envOverrideDuration(&c.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	envOverrideDuration(&c.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")

	envOverride(&c.Backend.BaseURL, "BACKEND_BASE_URL")
	envOverrideDuration(&c.Backend.Timeout, "BACKEND_TIMEOUT")

	envOverride(&c.Session.Key, "SESSION_KEY")

	envOverride(&c.Cache.Type, "CACHE_TYPE")
	envOverride(&c.Cache.FilePath, "CACHE_FILE_PATH")

	envOverride(&c.Redis.URL, "REDIS_URL")
	envOverride(&c.Redis.Host, "REDIS_HOST")
	envOverrideInt(&c.Redis.Port, "REDIS_PORT")
	envOverride(&c.Redis.Password, "REDIS_PASSWORD")
	envOverrideInt(&c.Redis.DB, "REDIS_DB")

	envOverrideBool(&c.Database.Enabled, "DB_ENABLED")
	envOverride(&c.Database.Host, "DB_HOST")
	envOverrideInt(&c.Database.Port, "DB_PORT")
	envOverride(&c.Database.User, "DB_USER")
	envOverride(&c.Database.Password, "DB_PASSWORD")
	envOverride(&c.Database.DBName, "DB_NAME")
	envOverride(&c.Database.SSLMode, "DB_SSLMODE")
	envOverride(&c.Database.LogLevel, "DB_LOG_LEVEL")

	envOverride(&c.Log.Level, "LOG_LEVEL")
	envOverride(&c.Log.Format, "LOG_FORMAT")
	envOverride(&c.Log.File, "LOG_FILE")

	envOverrideList(&c.CORS.AllowedOrigins, "CORS_ALLOWED_ORIGINS")

	envOverrideBool(&c.Metrics.Enabled, "METRICS_ENABLED")
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return errors.New("backend base URL is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend base URL %q", c.Backend.BaseURL)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Redis.URL == "" && c.Redis.Host == "" {
			return errors.New("redis cache requires REDIS_URL or REDIS_HOST")
		}
	case "file":
		if c.Cache.FilePath == "" {
			return errors.New("file cache requires a file path")
		}
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return errors.New("database name is required when the database is enabled")
	}
	return nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// RedisAddr returns host:port for the redis cache
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func envOverride(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOverrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envOverrideBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envOverrideDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envOverrideList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var items []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		*dst = items
	}
}
