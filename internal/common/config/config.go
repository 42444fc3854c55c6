package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	APIs          APIsConfig              `mapstructure:"apis"`
	Pipeline      PipelineConfig          `mapstructure:"pipeline"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	HTTPAddress string `mapstructure:"http_address"`
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
	ConnectTimeout  int    `mapstructure:"connect_timeout"`   // seconds
	SSLMode         string `mapstructure:"sslmode"`
	ApplicationName string `mapstructure:"application_name"`
}

// GetDSN builds a lib/pq key/value connection string. Values are quoted so
// passwords with spaces or quotes survive.
func (p PostgresConfig) GetDSN() string {
	keys := []string{"host", "port", "user", "password", "dbname", "sslmode", "application_name", "connect_timeout"}
	values := map[string]string{
		"host":             p.Host,
		"user":             p.User,
		"password":         p.Password,
		"dbname":           p.Database,
		"sslmode":          p.SSLMode,
		"application_name": p.ApplicationName,
	}
	if p.Port > 0 {
		values["port"] = strconv.Itoa(p.Port)
	}
	if p.ConnectTimeout > 0 {
		values["connect_timeout"] = strconv.Itoa(p.ConnectTimeout)
	}

	quote := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if values[k] == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s='%s'", k, quote.Replace(values[k])))
	}
	return strings.Join(parts, " ")
}

type ElasticsearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	URL           string   `mapstructure:"url"` // single URL for backwards compatibility
	ServicesIndex string   `mapstructure:"services_index"`
	MaxRetries    int      `mapstructure:"max_retries"`
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// RedisConfig addresses either host:port or a redis:// URL. Fields set here
// win over what the URL carries.
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"` // milliseconds
	ReadTimeout  int    `mapstructure:"read_timeout"` // milliseconds
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // for error handling
}

type APIsConfig struct {
	GenAI struct {
		BaseURL           string  `mapstructure:"base_url"`
		APIKey            string  `mapstructure:"api_key"`
		Model             string  `mapstructure:"model"`
		Timeout           int     `mapstructure:"timeout"` // milliseconds
		MaxTokens         int     `mapstructure:"max_tokens"`
		Temperature       float64 `mapstructure:"temperature"`
		RequestsPerSecond float64 `mapstructure:"requests_per_second"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"genai"`
}

// PipelineConfig tunes the extraction, validation and recovery core.
type PipelineConfig struct {
	StateTTL             int     `mapstructure:"state_ttl"`         // seconds
	StateLockTTL         int     `mapstructure:"state_lock_ttl"`    // seconds
	CatalogCacheTTL      int     `mapstructure:"catalog_cache_ttl"` // seconds
	FuzzyThreshold       float64 `mapstructure:"fuzzy_threshold"`
	SemanticThreshold    float64 `mapstructure:"semantic_threshold"`
	AutoCorrectThreshold float64 `mapstructure:"auto_correct_threshold"`
	HistorySize          int     `mapstructure:"history_size"`
	HistoryLength        int     `mapstructure:"history_length"`
	ProbeURL             string  `mapstructure:"probe_url"`
	ProbeTimeout         int     `mapstructure:"probe_timeout"` // milliseconds
	CatalogSeedPath      string  `mapstructure:"catalog_seed_path"`
	SlangDictionaryPath  string  `mapstructure:"slang_dictionary_path"`
	MaxSuggestions       int     `mapstructure:"max_suggestions"`
	AnalysisWindowDays   int     `mapstructure:"analysis_window_days"`
}

func (p PipelineConfig) StateTTLDuration() time.Duration {
	return time.Duration(p.StateTTL) * time.Second
}

func (p PipelineConfig) StateLockTTLDuration() time.Duration {
	return time.Duration(p.StateLockTTL) * time.Second
}

func (p PipelineConfig) CatalogCacheTTLDuration() time.Duration {
	return time.Duration(p.CatalogCacheTTL) * time.Second
}

func (p PipelineConfig) ProbeTimeoutDuration() time.Duration {
	return GetDuration(p.ProbeTimeout)
}

type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	Escalation struct {
		Enabled  bool   `mapstructure:"enabled"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"escalation"`
	Report struct {
		Enabled   bool     `mapstructure:"enabled"`
		FromEmail string   `mapstructure:"from_email"`
		To        []string `mapstructure:"to"`
	} `mapstructure:"report"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
