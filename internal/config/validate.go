package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *GatewayConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if len(c.Backends) == 0 {
		return errors.New("at least one backend is required")
	}
	for i, b := range c.Backends {
		if b.URL == "" {
			return fmt.Errorf("backends[%d].url is required", i)
		}
		u, err := url.Parse(b.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("backends[%d].url %q is not a valid absolute URL", i, b.URL)
		}
		if b.TargetQPS < 0 {
			return fmt.Errorf("backends[%d].target_qps must be >= 0", i)
		}
	}

	if c.Admission.TimeWindow <= 0 {
		return errors.New("admission.time_window must be > 0")
	}
	if c.Admission.TargetQPS <= 0 {
		return errors.New("admission.target_qps must be > 0")
	}

	if c.Dispatch.PollInterval <= 0 {
		return errors.New("dispatch.poll_interval must be > 0")
	}
	if c.Dispatch.HistorySize < 1 {
		return errors.New("dispatch.history_size must be >= 1")
	}

	if c.Forwarding.Mode != "buffer" && c.Forwarding.Mode != "stream" {
		return fmt.Errorf("forwarding.mode must be %q or %q, got %q", "buffer", "stream", c.Forwarding.Mode)
	}

	if c.Status.Interval <= 0 {
		return errors.New("status.interval must be > 0")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.AdminPort < 1 || c.Server.AdminPort > 65535 {
		return fmt.Errorf("server.admin_port must be between 1 and 65535, got %d", c.Server.AdminPort)
	}
	if c.Server.Port == c.Server.AdminPort {
		return errors.New("server.port and server.admin_port must differ")
	}

	if c.AuditEnabled() {
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
