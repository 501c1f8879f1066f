package models

// MConfig Structure
type MConfig struct {
	Name      string           `yaml:"name"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	LogLevel  string           `yaml:"log_level"`
	GrpcHost  string           `yaml:"grpc_host"`
	GrpcPort  int              `yaml:"grpc_port"`
	Storage   MStorageConfig   `yaml:"storage"`
	Cache     MCacheConfig     `yaml:"cache"`
	Refresh   MRefreshConfig   `yaml:"refresh"`
	Analytics MAnalyticsConfig `yaml:"analytics"`
	Datasets  []MDatasetConfig `yaml:"datasets"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	ReadTimeoutSeconds int    `yaml:"read_timeout_seconds"`
	MaxRetries         int    `yaml:"max_retries"`
	RetryBackoffMillis int    `yaml:"retry_backoff_millis"`
}

type MCacheConfig struct {
	Disabled             bool `yaml:"disabled"`
	TTLSeconds           int  `yaml:"ttl_seconds"`
	MaxEntries           int  `yaml:"max_entries"`
	PurgeIntervalSeconds int  `yaml:"purge_interval_seconds"`
	// sector table periods recomputed after each full rebuild
	PrewarmPeriods []string `yaml:"prewarm_periods"`
}

type MRefreshConfig struct {
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
	LazyLoad  bool `yaml:"lazy_load"`
}

type MAnalyticsConfig struct {
	ShortWindow       int  `yaml:"short_window"`
	LongWindow        int  `yaml:"long_window"`
	TradingDays       int  `yaml:"trading_days"`
	MinGroupSize      int  `yaml:"min_group_size"`
	DefaultTopN       int  `yaml:"default_top_n"`
	DisablePrecompute bool `yaml:"disable_precompute"`
}

// MDatasetConfig describes one index universe, e.g. "sp500"
type MDatasetConfig struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Table       string `yaml:"table"`
	Calendar    string `yaml:"calendar"` // exchange MIC, e.g. XNYS
	RefreshCron string `yaml:"refresh_cron"`
	Preload     bool   `yaml:"preload"`
}
