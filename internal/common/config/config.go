// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig               `mapstructure:"app"`
	Camunda  CamundaConfig           `mapstructure:"camunda"`
	Database DatabaseConfig          `mapstructure:"database"`
	Workers  map[string]WorkerConfig `mapstructure:"workers"`
	Engine   EngineConfig            `mapstructure:"engine"`
	Cache    CacheConfig             `mapstructure:"cache"`
	Search   SearchConfig            `mapstructure:"search"`
	Registry RegistryConfig          `mapstructure:"registry"`
	Events   EventsConfig            `mapstructure:"events"`
	Logging  LoggingConfig           `mapstructure:"logging"`
	Server   ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	MaxConnections  int    `mapstructure:"max_connections"`
	MaxIdle         int    `mapstructure:"max_idle"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
	SSLMode         string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // single address shorthand
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	MinIdle  int    `mapstructure:"min_idle"`
	Timeout  int    `mapstructure:"timeout"` // milliseconds, read and write
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// --- Deal engine ---

// EngineConfig holds the lookup tables and thresholds of the deal engine.
// Empty values fall back to the built-in catalog.
type EngineConfig struct {
	SourceReliability   map[string]float64 `mapstructure:"source_reliability"`
	DefaultReliability  float64            `mapstructure:"default_reliability"`
	Cities              []string           `mapstructure:"cities"`
	UnknownCity         string             `mapstructure:"unknown_city"`
	Zoning              []ZoningRuleConfig `mapstructure:"zoning"`
	DefaultLimit        int                `mapstructure:"default_limit"`
	SimilarityThreshold float64            `mapstructure:"similarity_threshold"`
	SurfaceTolerance    float64            `mapstructure:"surface_tolerance"`
	PriceTolerance      float64            `mapstructure:"price_tolerance"`
}

// ZoningRuleConfig is one ordered zoning keyword set.
type ZoningRuleConfig struct {
	Category string   `mapstructure:"category"`
	Keywords []string `mapstructure:"keywords"`
}

// CacheConfig holds the fingerprint cache settings.
type CacheConfig struct {
	KeyPrefix      string `mapstructure:"key_prefix"`
	FingerprintTTL int    `mapstructure:"fingerprint_ttl"` // seconds
}

// SearchConfig holds the deal search index settings.
type SearchConfig struct {
	Index string `mapstructure:"index"`
}

// RegistryConfig points at the activity registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path"`
}

// EventsConfig controls publishing of persisted deals to an SNS topic.
type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Region   string `mapstructure:"region"`
	TopicARN string `mapstructure:"topic_arn"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Address string `mapstructure:"address"`
}
