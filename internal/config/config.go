package config

import "time"

// GatewayConfig is the root configuration for a flowgate instance.
type GatewayConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Backends   []BackendConfig  `yaml:"backends"`
	Admission  AdmissionConfig  `yaml:"admission"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Forwarding ForwardingConfig `yaml:"forwarding"`
	Status     StatusConfig     `yaml:"status"`
	Server     ServerConfig     `yaml:"server"`
	Audit      AuditConfig      `yaml:"audit"`
}

// InstanceConfig identifies this gateway.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// BackendConfig describes one downstream compute node. The backend list is
// fixed for the process lifetime; backend index in this list is the BackendID
// used everywhere else.
type BackendConfig struct {
	URL string `yaml:"url"`

	// TargetQPS overrides admission.target_qps for this backend when > 0.
	TargetQPS float64 `yaml:"target_qps"`
}

// AdmissionConfig holds the sliding-window rate limiter settings.
type AdmissionConfig struct {
	TimeWindow time.Duration `yaml:"time_window"`
	TargetQPS  float64       `yaml:"target_qps"`
}

// DispatchConfig holds per-backend worker settings.
type DispatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	HistorySize  int           `yaml:"history_size"`
}

// ForwardingConfig selects how proxied responses are relayed.
type ForwardingConfig struct {
	// Mode is "buffer" (wait for the full backend response) or "stream"
	// (relay status/headers/chunks as they arrive).
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

// StatusConfig holds status reporter settings.
type StatusConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig holds the inbound HTTP listener settings.
type ServerConfig struct {
	Port      int `yaml:"port"`
	AdminPort int `yaml:"admin_port"`
}

// AuditConfig holds the optional request audit trail settings. The audit
// writer is disabled unless a database host is configured.
type AuditConfig struct {
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
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

// AuditEnabled reports whether the audit trail should be started.
func (c *GatewayConfig) AuditEnabled() bool {
	return c.Audit.Database.Host != ""
}

// TargetQPSFor returns the effective QPS budget for the given backend index.
func (c *GatewayConfig) TargetQPSFor(backend int) float64 {
	if backend >= 0 && backend < len(c.Backends) && c.Backends[backend].TargetQPS > 0 {
		return c.Backends[backend].TargetQPS
	}
	return c.Admission.TargetQPS
}
