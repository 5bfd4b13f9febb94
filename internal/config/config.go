package config

import "time"

// GathererConfig is the root configuration for a gatherer instance.
type GathererConfig struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Database    DatabaseConfig    `yaml:"database"`
	Connections ConnectionsConfig `yaml:"connections"`
	Writers     WritersConfig     `yaml:"writers"`
	Poller      PollerConfig      `yaml:"poller"`
	UserStream  UserStreamConfig  `yaml:"user_stream"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Replay      ReplayConfig      `yaml:"replay"`
}

// InstanceConfig identifies this gatherer.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// ExchangeConfig holds exchange API settings.
type ExchangeConfig struct {
	Name       string        `yaml:"name"`     // Exchange label used in logs and metrics
	RestURL    string        `yaml:"rest_url"` // e.g. https://api.example.com/v1
	WSURL      string        `yaml:"ws_url"`   // e.g. wss://stream.example.com/ws
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"` // HMAC signing secret
	Pairs      []string      `yaml:"pairs"`      // Trading pairs to gather; empty = all trading instruments
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // REST requests per second
	RateBurst  int           `yaml:"rate_burst"`
}

// DatabaseConfig holds the time-series database connection.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ConnectionsConfig holds WebSocket connection manager settings.
type ConnectionsConfig struct {
	BookCount          int           `yaml:"book_count"`           // Book connections in the pool
	PairsPerConnection int           `yaml:"pairs_per_connection"` // Soft cap per book connection
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	BufferSize         int           `yaml:"buffer_size"` // Central raw message buffer
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// PollerConfig holds snapshot poller settings.
type PollerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Depth       int           `yaml:"depth"` // Book depth per poll, 0 = full
}

// UserStreamConfig holds user data stream settings.
type UserStreamConfig struct {
	Enabled           bool          `yaml:"enabled"`
	KeepAliveInterval time.Duration `yaml:"keepalive_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	BufferSize        int           `yaml:"buffer_size"`
}

// GatewayConfig holds the companion gateway service settings.
type GatewayConfig struct {
	Enabled bool          `yaml:"enabled"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	UseSSL  bool          `yaml:"use_ssl"`
	CAPath  string        `yaml:"ca_path"` // Self-signed CA certificate, optional
	Timeout time.Duration `yaml:"timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// ReplayConfig holds HTTP record/replay harness settings.
type ReplayConfig struct {
	Mode string `yaml:"mode"` // "off", "record", or "replay"
	Path string `yaml:"path"` // SQLite fixture database path
}
