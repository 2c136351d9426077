package models

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

type Config struct {
	LogLevel  string          `json:"log_level"`
	Server    ServerConfig    `json:"server"`
	Broker    BrokerConfig    `json:"broker"`
	Storage   StorageConfig   `json:"storage"`
	Retention RetentionConfig `json:"retention"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
}

type ServerConfig struct {
	Port      int    `json:"port"`
	StaticDir string `json:"static_dir"`
}

// BrokerConfig describes the pub/sub broker connection. TopicPrefix scopes
// all topics so several drop zones can share one broker.
type BrokerConfig struct {
	URL         string `json:"url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// StorageConfig selects the persistence backend at startup: "sqlite" for
// durable deployments, "memory" for field/offline use with zero external
// dependencies.
type StorageConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

type RetentionConfig struct {
	MessageLimit int  `json:"message_limit"`
	SameDayLifts bool `json:"same_day_lifts"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts"`
}

type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}
