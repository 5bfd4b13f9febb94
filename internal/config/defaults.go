package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout            = 30 * time.Second
	DefaultMaxRetries            = 3
	DefaultRateLimit             = 10.0
	DefaultRateBurst             = 20
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultBookCount             = 4
	DefaultPairsPerConnection    = 50
	DefaultReconnectBaseDelay    = 1 * time.Second
	DefaultReconnectMaxDelay     = 60 * time.Second
	DefaultPingInterval          = 15 * time.Second
	DefaultReadTimeout           = 30 * time.Second
	DefaultConnBufferSize        = 100000
	DefaultBatchSize             = 1000
	DefaultFlushInterval         = 1 * time.Second
	DefaultWriterBufferSize      = 10000
	DefaultPollInterval          = 15 * time.Minute
	DefaultPollConcurrency       = 10
	DefaultKeepAliveInterval     = 30 * time.Minute
	DefaultUserReconnectDelay    = 5 * time.Second
	DefaultUserStreamBufferSize  = 1000
	DefaultGatewayPort           = 15888
	DefaultGatewayTimeout        = 10 * time.Second
	DefaultMetricsPort           = 9090
	DefaultMetricsPath           = "/metrics"
	DefaultReplayMode            = "off"
)

func (c *GathererConfig) applyDefaults() {
	// Exchange defaults
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = DefaultAPITimeout
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = DefaultMaxRetries
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = DefaultRateLimit
	}
	if c.Exchange.RateBurst == 0 {
		c.Exchange.RateBurst = DefaultRateBurst
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Connections defaults
	if c.Connections.BookCount == 0 {
		c.Connections.BookCount = DefaultBookCount
	}
	if c.Connections.PairsPerConnection == 0 {
		c.Connections.PairsPerConnection = DefaultPairsPerConnection
	}
	if c.Connections.ReconnectBaseDelay == 0 {
		c.Connections.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connections.ReconnectMaxDelay == 0 {
		c.Connections.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connections.PingInterval == 0 {
		c.Connections.PingInterval = DefaultPingInterval
	}
	if c.Connections.ReadTimeout == 0 {
		c.Connections.ReadTimeout = DefaultReadTimeout
	}
	if c.Connections.BufferSize == 0 {
		c.Connections.BufferSize = DefaultConnBufferSize
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultWriterBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}

	// User stream defaults
	if c.UserStream.KeepAliveInterval == 0 {
		c.UserStream.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.UserStream.ReconnectDelay == 0 {
		c.UserStream.ReconnectDelay = DefaultUserReconnectDelay
	}
	if c.UserStream.BufferSize == 0 {
		c.UserStream.BufferSize = DefaultUserStreamBufferSize
	}

	// Gateway defaults
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = DefaultGatewayTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Replay defaults
	if c.Replay.Mode == "" {
		c.Replay.Mode = DefaultReplayMode
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
