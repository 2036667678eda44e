package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ResearchConfig is the enumerated tuning surface of the research pipeline.
// These knobs are hot-reloadable (see Manager).
type ResearchConfig struct {
	MaxSteps                  int     `mapstructure:"max_steps"`
	MaxRetriesPerStep         int     `mapstructure:"max_retries_per_step"`
	MinAcceptedSourcesPerStep int     `mapstructure:"min_accepted_sources_per_step"`
	RelevanceThreshold        float64 `mapstructure:"relevance_threshold"`
	MaxResultsPerSearch       int     `mapstructure:"max_results_per_search"`
	MaxContextTokens          int     `mapstructure:"max_context_tokens"`
	StepWorkerLimit           int     `mapstructure:"step_worker_limit"`
}

// ModelConfig configures the model gateway adapter.
type ModelConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	TimeoutMS    int     `mapstructure:"timeout_ms"`
	MaxAttempts  int     `mapstructure:"max_attempts"`
	BackoffMS    int     `mapstructure:"backoff_ms"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
}

// SearchConfig configures the search gateway adapter. The API key is taken
// from SEARCH_API_KEY, never from the config file.
type SearchConfig struct {
	Provider    string `mapstructure:"provider"`
	TimeoutMS   int    `mapstructure:"timeout_ms"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffMS   int    `mapstructure:"backoff_ms"`
}

// SessionConfig configures the session manager and turn store.
type SessionConfig struct {
	Backend      string `mapstructure:"backend"` // "sqlite" or "postgres"
	DSN          string `mapstructure:"dsn"`
	RedisAddr    string `mapstructure:"redis_addr"`
	TTLHours     int    `mapstructure:"ttl_hours"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

// TracingConfig configures optional OTLP tracing.
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// ObservabilityConfig groups metrics, logging, and tracing settings.
type ObservabilityConfig struct {
	MetricsPort int           `mapstructure:"metrics_port"`
	LogLevel    string        `mapstructure:"log_level"`
	Tracing     TracingConfig `mapstructure:"tracing"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	HTTPPort int `mapstructure:"http_port"`
}

// TemporalConfig configures the workflow engine connection.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Config is the full service configuration.
type Config struct {
	Research      ResearchConfig      `mapstructure:"research"`
	Model         ModelConfig         `mapstructure:"model"`
	Search        SearchConfig        `mapstructure:"search"`
	Session       SessionConfig       `mapstructure:"session"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`

	// Path the config was loaded from; empty when running on defaults.
	Path string `mapstructure:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Research: ResearchConfig{
			MaxSteps:                  5,
			MaxRetriesPerStep:         2,
			MinAcceptedSourcesPerStep: 2,
			RelevanceThreshold:        0.5,
			MaxResultsPerSearch:       5,
			MaxContextTokens:          4000,
			StepWorkerLimit:           3,
		},
		Model: ModelConfig{
			BaseURL:     "http://model-service:8000",
			TimeoutMS:   30000,
			MaxAttempts: 3,
			BackoffMS:   500,
		},
		Search: SearchConfig{
			Provider:    "tavily",
			TimeoutMS:   10000,
			MaxAttempts: 3,
			BackoffMS:   250,
		},
		Session: SessionConfig{
			Backend:      "sqlite",
			DSN:          "sounder.db",
			RedisAddr:    "localhost:6379",
			TTLHours:     24,
			HistoryLimit: 100,
		},
		Server: ServerConfig{
			HTTPPort: 8080,
		},
		Observability: ObservabilityConfig{
			MetricsPort: 2112,
			LogLevel:    "info",
			Tracing: TracingConfig{
				ServiceName: "sounder",
			},
		},
		Temporal: TemporalConfig{
			HostPort:  "localhost:7233",
			Namespace: "default",
			TaskQueue: "sounder-research",
		},
	}
}

// Load reads the config file from CONFIG_PATH (default
// config/sounder.yaml), merges it over the defaults, and applies env
// overrides. A missing file is not an error; the defaults apply.
func Load() (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/sounder.yaml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err == nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
		cfg.Path = path
	} else if _, statErr := os.Stat(path); statErr == nil {
		// File exists but did not parse: surface it rather than silently
		// running on defaults.
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MODEL_SERVICE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		cfg.Search.Provider = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Session.RedisAddr = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := os.Getenv("SESSION_DSN"); v != "" {
		cfg.Session.DSN = v
	}
	if v := os.Getenv("TEMPORAL_HOST"); v != "" {
		cfg.Temporal.HostPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Server.HTTPPort = p
		}
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Observability.MetricsPort = p
		}
	}
	if v := os.Getenv("MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Research.MaxSteps = n
		}
	}
	if v := os.Getenv("MAX_RETRIES_PER_STEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Research.MaxRetriesPerStep = n
		}
	}
	if v := os.Getenv("RELEVANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Research.RelevanceThreshold = f
		}
	}
}

// ModelTimeout returns the model gateway timeout as a duration.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutMS) * time.Millisecond
}

// SearchTimeout returns the search gateway timeout as a duration.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.Search.TimeoutMS) * time.Millisecond
}

// SessionTTL returns the session TTL as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLHours) * time.Hour
}
