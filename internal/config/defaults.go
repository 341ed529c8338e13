package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTimeWindow     = 10 * time.Second
	DefaultTargetQPS      = 1.0
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultHistorySize    = 1000
	DefaultForwardMode    = "stream"
	DefaultStatusInterval = 10 * time.Second
	DefaultServerPort     = 8001
	DefaultAdminPort      = 9090
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 1 * time.Second
	DefaultBufferSize     = 10000
)

func (c *GatewayConfig) applyDefaults() {
	if c.Admission.TimeWindow == 0 {
		c.Admission.TimeWindow = DefaultTimeWindow
	}
	if c.Admission.TargetQPS == 0 {
		c.Admission.TargetQPS = DefaultTargetQPS
	}

	if c.Dispatch.PollInterval == 0 {
		c.Dispatch.PollInterval = DefaultPollInterval
	}
	if c.Dispatch.HistorySize == 0 {
		c.Dispatch.HistorySize = DefaultHistorySize
	}

	if c.Forwarding.Mode == "" {
		c.Forwarding.Mode = DefaultForwardMode
	}

	if c.Status.Interval == 0 {
		c.Status.Interval = DefaultStatusInterval
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.AdminPort == 0 {
		c.Server.AdminPort = DefaultAdminPort
	}

	if c.AuditEnabled() {
		applyDBDefaults(&c.Audit.Database)
		if c.Audit.BatchSize == 0 {
			c.Audit.BatchSize = DefaultBatchSize
		}
		if c.Audit.FlushInterval == 0 {
			c.Audit.FlushInterval = DefaultFlushInterval
		}
		if c.Audit.BufferSize == 0 {
			c.Audit.BufferSize = DefaultBufferSize
		}
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
