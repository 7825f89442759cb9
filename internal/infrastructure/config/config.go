package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Catalog source kinds.
const (
	SourceRemote   = "remote"   // call the catalog HTTP API
	SourcePostgres = "postgres" // read a locally synced catalog database
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig
	Catalog   CatalogConfig
	Resolver  ResolverConfig
	Cache     CacheConfig
	Database  DatabaseConfig
	Aggregate AggregateConfig
}

// ServerConfig represents HTTP server configuration.
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int // Port for the Prometheus metrics HTTP server
}

// CatalogConfig selects and configures the catalog source.
type CatalogConfig struct {
	Source  string // "remote" or "postgres"
	BaseURL string // catalog API root, remote source only
	Token   string // optional static bearer token
	Timeout time.Duration
}

// ResolverConfig configures the ownership resolver.
type ResolverConfig struct {
	MaxConcurrent int64 // bound on concurrent group expansions
}

// CacheConfig configures the entity lookup cache.
type CacheConfig struct {
	Enabled      bool
	MaxSizeBytes int64
	TTL          time.Duration
	Metrics      bool
}

// AggregateConfig configures aggregation defaults.
type AggregateConfig struct {
	Kinds []string // default owned-entity kinds
	Limit int      // default number of rows
}

// DatabaseConfig represents PostgreSQL configuration (postgres source only).
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// findProjectRoot finds the project root directory by looking for go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found in any parent directory")
		}
		dir = parent
	}
}

// InitConfig initializes viper configuration.
// env: environment name (dev, test, prod)
func InitConfig(env string) error {
	if env == "" {
		env = "dev"
	}

	projectRoot, err := findProjectRoot()
	if err != nil {
		return fmt.Errorf("failed to find project root: %w", err)
	}

	viper.SetConfigName(fmt.Sprintf(".env.%s", env))
	viper.SetConfigType("env")
	viper.AddConfigPath(projectRoot)

	// Config file is optional; environment variables take precedence.
	_ = viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("METRICS_PORT", 9090)

	viper.SetDefault("CATALOG_SOURCE", SourceRemote)
	viper.SetDefault("CATALOG_BASE_URL", "http://localhost:7007")
	viper.SetDefault("CATALOG_TOKEN", "")
	viper.SetDefault("CATALOG_TIMEOUT_SECONDS", 15)

	viper.SetDefault("RESOLVER_MAX_CONCURRENT", 10)

	viper.SetDefault("CACHE_ENABLED", true)
	viper.SetDefault("CACHE_MAX_SIZE_BYTES", 50*1024*1024) // 50MB
	viper.SetDefault("CACHE_TTL_SECONDS", 30)
	viper.SetDefault("CACHE_METRICS", true)

	viper.SetDefault("AGGREGATE_KINDS", "Component,API,System")
	viper.SetDefault("AGGREGATE_LIMIT", 6)

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", 15432)
	viper.SetDefault("DB_USER", "ownerstats")
	viper.SetDefault("DB_NAME", "ownerstats_dev")
	viper.SetDefault("DB_SSLMODE", "disable")

	return nil
}

// Load loads configuration from viper.
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:        viper.GetString("SERVER_HOST"),
			Port:        viper.GetInt("SERVER_PORT"),
			MetricsPort: viper.GetInt("METRICS_PORT"),
		},
		Catalog: CatalogConfig{
			Source:  viper.GetString("CATALOG_SOURCE"),
			BaseURL: viper.GetString("CATALOG_BASE_URL"),
			Token:   viper.GetString("CATALOG_TOKEN"),
			Timeout: time.Duration(viper.GetInt("CATALOG_TIMEOUT_SECONDS")) * time.Second,
		},
		Resolver: ResolverConfig{
			MaxConcurrent: viper.GetInt64("RESOLVER_MAX_CONCURRENT"),
		},
		Cache: CacheConfig{
			Enabled:      viper.GetBool("CACHE_ENABLED"),
			MaxSizeBytes: viper.GetInt64("CACHE_MAX_SIZE_BYTES"),
			TTL:          time.Duration(viper.GetInt("CACHE_TTL_SECONDS")) * time.Second,
			Metrics:      viper.GetBool("CACHE_METRICS"),
		},
		Aggregate: AggregateConfig{
			Kinds: splitList(viper.GetString("AGGREGATE_KINDS")),
			Limit: viper.GetInt("AGGREGATE_LIMIT"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetInt("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Database: viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
	}

	switch config.Catalog.Source {
	case SourceRemote:
		if config.Catalog.BaseURL == "" {
			return nil, fmt.Errorf("CATALOG_BASE_URL is required for the remote catalog source")
		}
	case SourcePostgres:
		// DB_PASSWORD is required for security.
		if config.Database.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD is required (set via environment variable or .env file)")
		}
	default:
		return nil, fmt.Errorf("unknown catalog source %q (expected %q or %q)",
			config.Catalog.Source, SourceRemote, SourcePostgres)
	}

	return config, nil
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Database,
		c.SSLMode,
	)
}
