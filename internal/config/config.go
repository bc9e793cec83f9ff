package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Server ServerConfig `yaml:"server"`

	// Access log file and emitter
	AccessLog AccessLogConfig `yaml:"access_log"`

	// Client address resolution
	ClientIP ClientIPConfig `yaml:"client_ip"`

	// Geolocation lookup
	Geo GeoConfig `yaml:"geo"`

	// Database Configuration (geolocation cache)
	Database DatabaseConfig `yaml:"database"`

	// Log configuration
	LogLevel string `yaml:"log_level"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Production bool   `yaml:"production"`
}

// AccessLogConfig contains settings for the persisted access log
type AccessLogConfig struct {
	Path      string `yaml:"path"`
	QueueSize int    `yaml:"queue_size"` // Buffered records waiting for the writer goroutine
}

// ClientIPConfig controls how the real client address is derived
type ClientIPConfig struct {
	ForwardedHeader string        `yaml:"forwarded_header"`
	PrivatePrefixes []string      `yaml:"private_prefixes"`
	PublicIPURL     string        `yaml:"public_ip_url"`
	LookupTimeout   time.Duration `yaml:"lookup_timeout"`
}

// GeoConfig selects and configures the geolocation provider
type GeoConfig struct {
	Provider      string        `yaml:"provider"` // ipinfo, maxmind
	IPInfoURL     string        `yaml:"ipinfo_url"`
	IPInfoToken   string        `yaml:"ipinfo_token"`
	CityDBPath    string        `yaml:"city_db_path"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
	CacheEnabled  bool          `yaml:"cache_enabled"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// DatabaseConfig contains database-related settings
type DatabaseConfig struct {
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLife     time.Duration `yaml:"conn_max_life"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often expired cache rows are purged
}

// Defaults returns the built-in configuration used when nothing else is set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       8080,
			Production: false,
		},
		AccessLog: AccessLogConfig{
			Path:      "access_logs.log",
			QueueSize: 1024,
		},
		ClientIP: ClientIPConfig{
			ForwardedHeader: "X-Forwarded-For",
			PrivatePrefixes: []string{"192.168."},
			PublicIPURL:     "https://httpbin.org/ip",
			LookupTimeout:   5 * time.Second,
		},
		Geo: GeoConfig{
			Provider:      "ipinfo",
			IPInfoURL:     "https://ipinfo.io",
			CityDBPath:    "geoip/GeoLite2-City.mmdb",
			LookupTimeout: 5 * time.Second,
			CacheEnabled:  true,
			CacheTTL:      24 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:            "accesslynx.db",
			MaxOpenConns:    10,
			MaxIdleConns:    3,
			ConnMaxLife:     time.Hour,
			CleanupInterval: time.Hour,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from .env file, an optional YAML file and environment variables.
// Precedence: defaults < CONFIG_FILE < environment.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// loadYAML overlays the values present in the YAML file onto cfg
func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Production = getEnvAsBool("SERVER_PRODUCTION", cfg.Server.Production)

	cfg.AccessLog.Path = getEnv("ACCESS_LOG_PATH", cfg.AccessLog.Path)
	cfg.AccessLog.QueueSize = getEnvAsInt("ACCESS_LOG_QUEUE_SIZE", cfg.AccessLog.QueueSize)

	cfg.ClientIP.ForwardedHeader = getEnv("FORWARDED_HEADER", cfg.ClientIP.ForwardedHeader)
	cfg.ClientIP.PrivatePrefixes = getEnvAsList("PRIVATE_PREFIXES", cfg.ClientIP.PrivatePrefixes)
	cfg.ClientIP.PublicIPURL = getEnv("PUBLIC_IP_URL", cfg.ClientIP.PublicIPURL)
	cfg.ClientIP.LookupTimeout = getEnvAsDuration("LOOKUP_TIMEOUT", cfg.ClientIP.LookupTimeout)

	cfg.Geo.Provider = strings.ToLower(getEnv("GEO_PROVIDER", cfg.Geo.Provider))
	cfg.Geo.IPInfoURL = getEnv("IPINFO_URL", cfg.Geo.IPInfoURL)
	cfg.Geo.IPInfoToken = getEnv("IPINFO_TOKEN", cfg.Geo.IPInfoToken)
	cfg.Geo.CityDBPath = getEnv("GEOIP_CITY_DB", cfg.Geo.CityDBPath)
	cfg.Geo.LookupTimeout = getEnvAsDuration("LOOKUP_TIMEOUT", cfg.Geo.LookupTimeout)
	cfg.Geo.CacheEnabled = getEnvAsBool("GEO_CACHE_ENABLED", cfg.Geo.CacheEnabled)
	cfg.Geo.CacheTTL = getEnvAsDuration("GEO_CACHE_TTL", cfg.Geo.CacheTTL)

	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLife = getEnvAsDuration("DB_CONN_MAX_LIFE", cfg.Database.ConnMaxLife)
	cfg.Database.CleanupInterval = getEnvAsDuration("DB_CLEANUP_INTERVAL", cfg.Database.CleanupInterval)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList reads a comma-separated list, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	items := []string{}
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
