// Package config loads service configuration from an optional YAML file with
// NEUROEVAL_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/gestor-t/neuroeval/internal/assistant"
	"github.com/gestor-t/neuroeval/internal/infrastructure/redpanda"
	"github.com/gestor-t/neuroeval/internal/locale"
	"github.com/gestor-t/neuroeval/internal/observability/tracing"
	"github.com/gestor-t/neuroeval/pkg/workerpool"
)

// EnvPrefix prefixes every environment override, e.g. NEUROEVAL_SERVER_PORT
const EnvPrefix = "NEUROEVAL"

// Config is the complete service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Locale    LocaleConfig    `mapstructure:"locale"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Patients  PatientsConfig  `mapstructure:"patients"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int               `mapstructure:"port"`
	ReadTimeout     time.Duration     `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration     `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration     `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	APIKeys         map[string]string `mapstructure:"api_keys"`
	APIKey          string            `mapstructure:"api_key"`
	CORSOrigins     []string          `mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type LocaleConfig struct {
	Default string `mapstructure:"default"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

type PatientsConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

type AssistantConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIVersion     string        `mapstructure:"api_version"`
	APIKey         string        `mapstructure:"api_key"`
	FastModel      string        `mapstructure:"fast_model"`
	ReasoningModel string        `mapstructure:"reasoning_model"`
	Temperature    float64       `mapstructure:"temperature"`
	ThinkingBudget int           `mapstructure:"thinking_budget"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type WorkersConfig struct {
	Count           int           `mapstructure:"count"`
	QueueSize       int           `mapstructure:"queue_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
	Topic    string   `mapstructure:"topic"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

func setDefaults(v *viper.Viper) {
	ac := assistant.DefaultConfig()
	pc := workerpool.DefaultConfig()
	tc := tracing.DefaultConfig("neuroeval")

	v.SetDefault("server.port", 8081)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 4*time.Minute)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.api_keys", map[string]string{})
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("locale.default", string(locale.Default))
	v.SetDefault("catalog.path", "")
	v.SetDefault("patients.database_url", "")

	v.SetDefault("assistant.base_url", ac.BaseURL)
	v.SetDefault("assistant.api_version", ac.APIVersion)
	v.SetDefault("assistant.api_key", "")
	v.SetDefault("assistant.fast_model", ac.FastModel)
	v.SetDefault("assistant.reasoning_model", ac.ReasoningModel)
	v.SetDefault("assistant.temperature", ac.Temperature)
	v.SetDefault("assistant.thinking_budget", ac.ThinkingBudget)
	v.SetDefault("assistant.request_timeout", ac.RequestTimeout)

	v.SetDefault("workers.count", pc.Workers)
	v.SetDefault("workers.queue_size", pc.QueueSize)
	v.SetDefault("workers.shutdown_timeout", pc.GracefulShutdownTimeout)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.client_id", "neuroeval")
	v.SetDefault("kafka.topic", redpanda.TopicEvaluationEvents)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", tc.OTLPEndpoint)
	v.SetDefault("tracing.insecure", tc.Insecure)
	v.SetDefault("tracing.sample_rate", tc.SampleRate)
	v.SetDefault("tracing.environment", tc.Environment)
}

// Load reads configuration. An empty path searches ./neuroeval.yaml and
// /etc/neuroeval/neuroeval.yaml and tolerates neither existing.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// the assistant key is commonly provided without the prefix
	if err := v.BindEnv("assistant.api_key", EnvPrefix+"_ASSISTANT_API_KEY", "GEMINI_API_KEY", "API_KEY"); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		v.SetConfigName("neuroeval")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/neuroeval")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges. A missing assistant key is allowed and
// selects the offline gateway.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := locale.Parse(c.Locale.Default); err != nil {
		errs = append(errs, fmt.Errorf("locale.default: %w", err))
	}
	if c.Assistant.Temperature < 0 || c.Assistant.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %v out of range [0,2]", c.Assistant.Temperature))
	}
	if c.Assistant.RequestTimeout <= 0 {
		errs = append(errs, errors.New("assistant.request_timeout must be positive"))
	}
	if c.Workers.Count <= 0 {
		errs = append(errs, errors.New("workers.count must be positive"))
	}
	if c.Workers.QueueSize <= 0 {
		errs = append(errs, errors.New("workers.queue_size must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate %v out of range [0,1]", c.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// Addr is the HTTP listen address
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

// DefaultLanguage returns the parsed default session language
func (c *Config) DefaultLanguage() locale.Language {
	lang, err := locale.Parse(c.Locale.Default)
	if err != nil {
		return locale.Default
	}
	return lang
}

// ClientKeys returns the accepted API keys mapped to client names
func (c *Config) ClientKeys() map[string]string {
	keys := make(map[string]string, len(c.Server.APIKeys)+1)
	for k, v := range c.Server.APIKeys {
		keys[k] = v
	}
	if c.Server.APIKey != "" {
		keys[c.Server.APIKey] = "env-client"
	}
	return keys
}

// OfflineAssistant reports whether no assistant key is configured
func (c *Config) OfflineAssistant() bool { return c.Assistant.APIKey == "" }

// AssistantGateway converts to the gateway client configuration
func (c *Config) AssistantGateway() assistant.Config {
	return assistant.Config{
		BaseURL:        c.Assistant.BaseURL,
		APIVersion:     c.Assistant.APIVersion,
		APIKey:         c.Assistant.APIKey,
		FastModel:      c.Assistant.FastModel,
		ReasoningModel: c.Assistant.ReasoningModel,
		Temperature:    c.Assistant.Temperature,
		ThinkingBudget: c.Assistant.ThinkingBudget,
		RequestTimeout: c.Assistant.RequestTimeout,
	}
}

// WorkerPool converts to the worker pool configuration
func (c *Config) WorkerPool() workerpool.Config {
	return workerpool.Config{
		Workers:                 c.Workers.Count,
		QueueSize:               c.Workers.QueueSize,
		GracefulShutdownTimeout: c.Workers.ShutdownTimeout,
	}
}

// TracingProvider converts to the tracing configuration
func (c *Config) TracingProvider(version string) tracing.Config {
	tc := tracing.DefaultConfig("neuroeval")
	tc.Enabled = c.Tracing.Enabled
	tc.OTLPEndpoint = c.Tracing.Endpoint
	tc.Insecure = c.Tracing.Insecure
	tc.SampleRate = c.Tracing.SampleRate
	tc.Environment = c.Tracing.Environment
	if version != "" {
		tc.ServiceVersion = version
	}
	return tc
}

// Producer converts to the event producer configuration
func (c *Config) Producer() redpanda.ProducerConfig {
	pc := redpanda.DefaultProducerConfig()
	pc.Brokers = c.Kafka.Brokers
	pc.ClientID = c.Kafka.ClientID
	pc.Topic = c.Kafka.Topic
	return pc
}
