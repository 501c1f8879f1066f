package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"market-analytics/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var datasetKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new Config from a YAML file, then applies .env and
// ANALYTICS_* environment overrides
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a Config from YAML bytes
func Parse(data []byte) (*Config, error) {
	// 1. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()

	// 2. Environment wins over the file; a missing .env is fine
	_ = godotenv.Load()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// 3. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Storage.ReadTimeoutSeconds == 0 {
		c.Storage.ReadTimeoutSeconds = 60
	}
	if c.Storage.MaxRetries == 0 {
		c.Storage.MaxRetries = 3
	}
	if c.Storage.RetryBackoffMillis == 0 {
		c.Storage.RetryBackoffMillis = 500
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 1800
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 2048
	}
	if c.Cache.PrewarmPeriods == nil {
		c.Cache.PrewarmPeriods = []string{"max", "1y"}
	}
	if c.Cache.PurgeIntervalSeconds == 0 {
		c.Cache.PurgeIntervalSeconds = 300
	}
	if c.Refresh.Workers == 0 {
		c.Refresh.Workers = 2
	}
	if c.Refresh.QueueSize == 0 {
		c.Refresh.QueueSize = 16
	}
	if c.Analytics.ShortWindow == 0 {
		c.Analytics.ShortWindow = 30
	}
	if c.Analytics.LongWindow == 0 {
		c.Analytics.LongWindow = 90
	}
	if c.Analytics.TradingDays == 0 {
		c.Analytics.TradingDays = 252
	}
	if c.Analytics.MinGroupSize == 0 {
		c.Analytics.MinGroupSize = 1
	}
	if c.Analytics.DefaultTopN == 0 {
		c.Analytics.DefaultTopN = 3
	}
	for i := range c.Datasets {
		if c.Datasets[i].Table == "" {
			c.Datasets[i].Table = c.Datasets[i].Key + "_stocks"
		}
		if c.Datasets[i].Name == "" {
			c.Datasets[i].Name = c.Datasets[i].Key
		}
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() error {
	if v := os.Getenv("ANALYTICS_DB_CONNECTION_STRING"); v != "" {
		c.Storage.DBConnectionString = v
	}
	if v := os.Getenv("ANALYTICS_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("ANALYTICS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ANALYTICS_HOST"); v != "" {
		c.Host = v
	}
	for name, dst := range map[string]*int{
		"ANALYTICS_PORT":      &c.Port,
		"ANALYTICS_GRPC_PORT": &c.GrpcPort,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		*dst = n
	}
	if v := os.Getenv("ANALYTICS_CACHE_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ANALYTICS_CACHE_DISABLED %q: %w", v, err)
		}
		c.Cache.Disabled = b
	}
	return nil
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Server
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}

	// Storage
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	case "":
		return fmt.Errorf("database type cannot be empty")
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Storage.ReadTimeoutSeconds < 0 || c.Storage.MaxRetries < 0 {
		return fmt.Errorf("storage timeout and retries cannot be negative")
	}

	// Cache, refresh, analytics
	if c.Cache.TTLSeconds < 0 || c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache ttl and max entries cannot be negative")
	}
	if c.Refresh.Workers < 1 {
		return fmt.Errorf("refresh workers must be greater than 0")
	}
	if c.Refresh.QueueSize < 1 {
		return fmt.Errorf("refresh queue size must be greater than 0")
	}
	if c.Analytics.ShortWindow < 1 || c.Analytics.LongWindow < 1 {
		return fmt.Errorf("moving average windows must be greater than 0")
	}
	if c.Analytics.MinGroupSize < 1 {
		return fmt.Errorf("min group size must be greater than 0")
	}

	// Datasets
	if len(c.Datasets) == 0 {
		return fmt.Errorf("at least one dataset must be configured")
	}
	seen := make(map[string]bool, len(c.Datasets))
	for i, ds := range c.Datasets {
		if !datasetKeyPattern.MatchString(ds.Key) {
			return fmt.Errorf("dataset %d has an invalid key %q", i, ds.Key)
		}
		if !datasetKeyPattern.MatchString(ds.Table) {
			return fmt.Errorf("dataset '%s' has an invalid table name %q", ds.Key, ds.Table)
		}
		if seen[ds.Key] {
			return fmt.Errorf("dataset '%s' is configured twice", ds.Key)
		}
		seen[ds.Key] = true
	}

	return nil
}

// -----------------------------------------------------------------------------

// Dataset looks up a dataset by key
func (c *Config) Dataset(key string) (models.MDatasetConfig, bool) {
	for _, ds := range c.Datasets {
		if ds.Key == key {
			return ds, true
		}
	}
	return models.MDatasetConfig{}, false
}

// -----------------------------------------------------------------------------

// DatasetKeys returns configured dataset keys in declaration order
func (c *Config) DatasetKeys() []string {
	keys := make([]string, 0, len(c.Datasets))
	for _, ds := range c.Datasets {
		keys = append(keys, ds.Key)
	}
	return keys
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
