// Package config loads the typed tscache configuration from YAML and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	CentralizedCache CentralizedCache `yaml:"centralizedCache"`
	Server           Server           `yaml:"server"`
	Logging          Logging          `yaml:"logging"`
}

// CentralizedCache configures the cache layer and its data source.
type CentralizedCache struct {
	// TTL is the series time-to-live in seconds
	TTL int `yaml:"ttl"`

	// KeyPrefix is the namespace prefix of every series key
	KeyPrefix string `yaml:"keyPrefix"`

	// MaxParallelism bounds the batch worker pool
	MaxParallelism int `yaml:"maxParallelism"`

	DataSource DataSource `yaml:"dataSource"`
	Recovery   Recovery   `yaml:"recovery"`
}

// DataSource holds the Redis connection options. Durations are milliseconds.
type DataSource struct {
	Hosts                  []string `yaml:"hosts"`
	AuthUsername           string   `yaml:"authUsername"`
	AuthPassword           string   `yaml:"authPassword"`
	IdleConnectionTimeout  int      `yaml:"idleConnectionTimeout"`
	ConnectTimeout         int      `yaml:"connectTimeout"`
	Timeout                int      `yaml:"timeout"`
	RetryAttempts          int      `yaml:"retryAttempts"`
	RetryInterval          int      `yaml:"retryInterval"`
	PingConnectionInterval int      `yaml:"pingConnectionInterval"`
	KeepAlive              bool     `yaml:"keepAlive"`
	TCPNoDelay             bool     `yaml:"tcpNoDelay"`
}

// Recovery configures how a degraded backend returns to service.
type Recovery struct {
	Enabled bool `yaml:"enabled"`

	// OpenTimeout is in milliseconds
	OpenTimeout      int `yaml:"openTimeout"`
	SuccessThreshold int `yaml:"successThreshold"`
}

// Server configures the HTTP proxy.
type Server struct {
	ListenAddr      string        `yaml:"listenAddr"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Logging configures the logger.
type Logging struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ValidationError lists every invalid field found by Validate.
type ValidationError struct {
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		CentralizedCache: CentralizedCache{
			TTL:            3600,
			KeyPrefix:      "thirdeyeMetricId:",
			MaxParallelism: 10,
			DataSource: DataSource{
				Hosts:                  []string{"redis://127.0.0.1:6379"},
				IdleConnectionTimeout:  10000,
				ConnectTimeout:         10000,
				Timeout:                3000,
				RetryAttempts:          3,
				RetryInterval:          1500,
				PingConnectionInterval: 30000,
			},
			Recovery: Recovery{
				Enabled:          true,
				OpenTimeout:      30000,
				SuccessThreshold: 1,
			},
		},
		Server: Server{
			ListenAddr:      ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 25 * time.Second,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads the YAML file at path (optional: an empty path uses defaults
// only), applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	cc := c.CentralizedCache
	if cc.TTL <= 0 {
		add("centralizedCache.ttl must be positive (got %d)", cc.TTL)
	}
	if cc.KeyPrefix == "" {
		add("centralizedCache.keyPrefix is required")
	}
	if cc.MaxParallelism <= 0 {
		add("centralizedCache.maxParallelism must be positive (got %d)", cc.MaxParallelism)
	}

	ds := cc.DataSource
	nonNegative := []struct {
		field string
		value int
	}{
		{"idleConnectionTimeout", ds.IdleConnectionTimeout},
		{"connectTimeout", ds.ConnectTimeout},
		{"timeout", ds.Timeout},
		{"retryAttempts", ds.RetryAttempts},
		{"retryInterval", ds.RetryInterval},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			add("centralizedCache.dataSource.%s must not be negative (got %d)", f.field, f.value)
		}
	}
	if ds.PingConnectionInterval <= 0 {
		add("centralizedCache.dataSource.pingConnectionInterval must be positive (got %d)", ds.PingConnectionInterval)
	}

	if cc.Recovery.Enabled {
		if cc.Recovery.OpenTimeout <= 0 {
			add("centralizedCache.recovery.openTimeout must be positive (got %d)", cc.Recovery.OpenTimeout)
		}
		if cc.Recovery.SuccessThreshold <= 0 {
			add("centralizedCache.recovery.successThreshold must be positive (got %d)", cc.Recovery.SuccessThreshold)
		}
	}

	if c.Server.ListenAddr == "" {
		add("server.listenAddr is required")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// SeriesTTL returns the series TTL as a duration.
func (c *Config) SeriesTTL() time.Duration {
	return time.Duration(c.CentralizedCache.TTL) * time.Second
}

// applyEnv overrides file values with TSCACHE_* environment variables.
func applyEnv(cfg *Config) error {
	ds := &cfg.CentralizedCache.DataSource

	if hosts := getEnv("TSCACHE_REDIS_HOSTS", ""); hosts != "" {
		ds.Hosts = splitList(hosts)
	}
	ds.AuthUsername = getEnv("TSCACHE_REDIS_USERNAME", ds.AuthUsername)
	ds.AuthPassword = getEnv("TSCACHE_REDIS_PASSWORD", ds.AuthPassword)
	cfg.Server.ListenAddr = getEnv("TSCACHE_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Logging.Level = getEnv("TSCACHE_LOG_LEVEL", cfg.Logging.Level)

	ttl, err := getEnvInt("TSCACHE_CACHE_TTL", cfg.CentralizedCache.TTL)
	if err != nil {
		return err
	}
	cfg.CentralizedCache.TTL = ttl
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
