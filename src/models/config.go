package models

import "time"

// -----------------------------------------------------------------------------

// MConfig is the root of the YAML configuration file.
type MConfig struct {
	Name      string            `yaml:"name"`
	LogLevel  string            `yaml:"log_level"`
	LogFormat string            `yaml:"log_format"`
	StatusAPI MStatusAPIConfig  `yaml:"status_api"`
	GRPC      MGRPCConfig       `yaml:"grpc"`
	NATS      MNATSConfig       `yaml:"nats"`
	Cache     MCacheConfig      `yaml:"cache"`
	Health    MHealthConfig     `yaml:"health"`
	Realtime  MRealtimeConfig   `yaml:"realtime"`
	Services  []*MServiceConfig `yaml:"services"`
}

// -----------------------------------------------------------------------------

// MStatusAPIConfig configures the read-only HTTP status API.
type MStatusAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// -----------------------------------------------------------------------------

// MGRPCConfig configures the gRPC health surface.
type MGRPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// -----------------------------------------------------------------------------

// MNATSConfig configures the NATS status publisher.
type MNATSConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Servers        []string          `yaml:"servers"`
	ClientID       string            `yaml:"client_id"`
	SubjectPrefix  string            `yaml:"subject_prefix"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout"`
	ReconnectWait  time.Duration     `yaml:"reconnect_wait"`
	MaxReconnects  int               `yaml:"max_reconnects"`
	FlushTimeout   time.Duration     `yaml:"flush_timeout"`
	JetStream      *MJetStreamConfig `yaml:"jetstream,omitempty"`
}

// -----------------------------------------------------------------------------

// MJetStreamConfig configures the optional persistent status stream.
type MJetStreamConfig struct {
	Enabled    bool          `yaml:"enabled"`
	StreamName string        `yaml:"stream_name"`
	Subjects   []string      `yaml:"subjects"`
	Replicas   int           `yaml:"replicas"`
	MaxAge     time.Duration `yaml:"max_age"`
	MaxMsgs    int64         `yaml:"max_msgs"`
	MaxBytes   int64         `yaml:"max_bytes"`
	MaxMsgSize int32         `yaml:"max_msg_size"`
}

// -----------------------------------------------------------------------------

// MCacheConfig configures the in-process response cache.
type MCacheConfig struct {
	// MaxEntries bounds the live set; 0 means unbounded.
	MaxEntries int `yaml:"max_entries"`
}

// -----------------------------------------------------------------------------

// MHealthConfig configures the health monitor loop.
type MHealthConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`
}

// -----------------------------------------------------------------------------

// MRealtimeConfig configures the push session and its poll fallback.
type MRealtimeConfig struct {
	Enabled              bool              `yaml:"enabled"`
	Endpoint             string            `yaml:"endpoint"`
	Protocol             string            `yaml:"protocol"`
	ConnectTimeout       time.Duration     `yaml:"connect_timeout"`
	BaseDelay            time.Duration     `yaml:"base_delay"`
	MaxDelay             time.Duration     `yaml:"max_delay"`
	MaxReconnectAttempts int               `yaml:"max_reconnect_attempts"`
	PollInterval         time.Duration     `yaml:"poll_interval"`
	PollTimeout          time.Duration     `yaml:"poll_timeout"`
	PollBaseURL          string            `yaml:"poll_base_url"`
	PollEndpoints        map[string]string `yaml:"poll_endpoints"`
	Topics               []MSubscription   `yaml:"topics"`
}
