package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration. Values come from an
// optional YAML file overridden by EMS_-prefixed environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Loader   LoaderConfig   `yaml:"loader" envconfig:"LOADER"`
	Dataset  DatasetConfig  `yaml:"dataset" envconfig:"DATASET"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// LoadTimeout bounds the load endpoints, which may pull and parse a
	// multi-hundred-megabyte CSV.
	LoadTimeout time.Duration `yaml:"load_timeout" envconfig:"LOAD_TIMEOUT"`
}

// SecurityConfig contains CORS and rate-limit configuration.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration. Output is JSON either to
// stdout, a file, or both.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// LoaderConfig controls dataset retrieval.
type LoaderConfig struct {
	// FetchTimeout bounds a single remote download. Shared files can run to
	// hundreds of megabytes, so the default is generous.
	FetchTimeout time.Duration `yaml:"fetch_timeout" envconfig:"FETCH_TIMEOUT"`
	// MaxUploadBytes caps direct uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
	// GoogleAPIKey, when set, switches Drive fetches to the Drive API, which
	// also yields file metadata for progress reporting. Unset, the loader
	// falls back to the public direct-download URL.
	GoogleAPIKey string `yaml:"google_api_key" envconfig:"GOOGLE_API_KEY"`
	// CacheSize is the number of loaded snapshots kept for re-serving
	// repeated loads of the same source without refetching or reparsing.
	CacheSize int `yaml:"cache_size" envconfig:"CACHE_SIZE"`
}

// DatasetConfig controls pipeline behavior over the loaded table.
type DatasetConfig struct {
	// FilterColumns are the columns exposed as multi-select filters.
	FilterColumns []string `yaml:"filter_columns" envconfig:"FILTER_COLUMNS"`
	// NullTokens overrides the built-in semantic-null token set when
	// non-empty.
	NullTokens []string `yaml:"null_tokens" envconfig:"NULL_TOKENS"`
	// Normalize applies semantic-null normalization at load time.
	Normalize bool `yaml:"normalize" envconfig:"NORMALIZE"`
	// DuplicateKey is the incident identifier expected to be unique.
	DuplicateKey string `yaml:"duplicate_key" envconfig:"DUPLICATE_KEY"`
	// PreviewLimit caps the rows returned by the preview endpoint.
	PreviewLimit int `yaml:"preview_limit" envconfig:"PREVIEW_LIMIT"`
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides, then validates.
func Load() (*Config, error) {
	cfg := Default()

	if path := configFilePath(); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("EMS", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Loader.FetchTimeout <= 0 {
		return fmt.Errorf("loader fetch timeout must be positive")
	}
	if c.Loader.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Loader.CacheSize < 1 {
		c.Loader.CacheSize = 1
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		c.Logging.Output = "stdout"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/emspulse.log"
	}
	if c.Dataset.DuplicateKey == "" {
		return fmt.Errorf("dataset duplicate key must not be empty")
	}
	if c.Dataset.PreviewLimit <= 0 {
		c.Dataset.PreviewLimit = 100
	}
	return nil
}

// configFilePath finds the first config file in the conventional locations.
func configFilePath() string {
	for _, location := range []string{"config.yaml", "configs/config.yaml"} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    180 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			LoadTimeout:     5 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/emspulse.log",
		},
		Loader: LoaderConfig{
			FetchTimeout:   120 * time.Second,
			MaxUploadBytes: 200 << 20,
			CacheSize:      4,
		},
		Dataset: DatasetConfig{
			FilterColumns: []string{"Gender", "Race", "AgeGroup", "Urbanicity", "USCensusDivision", "Year"},
			Normalize:     true,
			DuplicateKey:  "PcrKey",
			PreviewLimit:  100,
		},
	}
}
