package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
  az: us-east-1a
backends:
  - url: http://machine0:8000
  - url: http://machine1:8000
    target_qps: 2.5
admission:
  time_window: 10s
  target_qps: 1.0
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gateway" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gateway")
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("len(Backends) = %d, want 2", len(cfg.Backends))
	}
	if cfg.Backends[0].URL != "http://machine0:8000" {
		t.Errorf("Backends[0].URL = %q, want %q", cfg.Backends[0].URL, "http://machine0:8000")
	}
	if cfg.Backends[1].TargetQPS != 2.5 {
		t.Errorf("Backends[1].TargetQPS = %v, want 2.5", cfg.Backends[1].TargetQPS)
	}
	if cfg.Admission.TimeWindow != 10*time.Second {
		t.Errorf("Admission.TimeWindow = %v, want 10s", cfg.Admission.TimeWindow)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_AUDIT_PASSWORD", "secret123")

	yaml := `
instance:
  id: test-gateway
backends:
  - url: http://machine0:8000
audit:
  database:
    host: localhost
    name: flowgate
    user: audit
    password: ${TEST_AUDIT_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audit.Database.Password != "secret123" {
		t.Errorf("Audit.Database.Password = %q, want %q", cfg.Audit.Database.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-gateway
backends:
  - url: http://machine0:8000
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Admission.TimeWindow != DefaultTimeWindow {
		t.Errorf("Admission.TimeWindow = %v, want default %v", cfg.Admission.TimeWindow, DefaultTimeWindow)
	}
	if cfg.Admission.TargetQPS != DefaultTargetQPS {
		t.Errorf("Admission.TargetQPS = %v, want default %v", cfg.Admission.TargetQPS, DefaultTargetQPS)
	}
	if cfg.Dispatch.PollInterval != DefaultPollInterval {
		t.Errorf("Dispatch.PollInterval = %v, want default %v", cfg.Dispatch.PollInterval, DefaultPollInterval)
	}
	if cfg.Forwarding.Mode != DefaultForwardMode {
		t.Errorf("Forwarding.Mode = %q, want default %q", cfg.Forwarding.Mode, DefaultForwardMode)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultServerPort)
	}
	if cfg.AuditEnabled() {
		t.Error("AuditEnabled() = true with no audit database configured")
	}
}

func TestValidate(t *testing.T) {
	valid := func() GatewayConfig {
		return GatewayConfig{
			Instance: InstanceConfig{ID: "gw-1"},
			Backends: []BackendConfig{{URL: "http://machine0:8000"}},
			Admission: AdmissionConfig{
				TimeWindow: 10 * time.Second,
				TargetQPS:  1.0,
			},
			Dispatch: DispatchConfig{
				PollInterval: 100 * time.Millisecond,
				HistorySize:  100,
			},
			Forwarding: ForwardingConfig{Mode: "stream"},
			Status:     StatusConfig{Interval: 10 * time.Second},
			Server:     ServerConfig{Port: 8001, AdminPort: 9090},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(c *GatewayConfig) {},
			wantErr: "",
		},
		{
			name:    "missing instance id",
			mutate:  func(c *GatewayConfig) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "no backends",
			mutate:  func(c *GatewayConfig) { c.Backends = nil },
			wantErr: "at least one backend is required",
		},
		{
			name:    "bad backend url",
			mutate:  func(c *GatewayConfig) { c.Backends[0].URL = "machine0:8000" },
			wantErr: "not a valid absolute URL",
		},
		{
			name:    "zero time window",
			mutate:  func(c *GatewayConfig) { c.Admission.TimeWindow = 0 },
			wantErr: "admission.time_window must be > 0",
		},
		{
			name:    "zero target qps",
			mutate:  func(c *GatewayConfig) { c.Admission.TargetQPS = 0 },
			wantErr: "admission.target_qps must be > 0",
		},
		{
			name:    "bad forwarding mode",
			mutate:  func(c *GatewayConfig) { c.Forwarding.Mode = "chunked" },
			wantErr: "forwarding.mode must be",
		},
		{
			name:    "port collision",
			mutate:  func(c *GatewayConfig) { c.Server.AdminPort = c.Server.Port },
			wantErr: "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTargetQPSFor(t *testing.T) {
	cfg := GatewayConfig{
		Backends: []BackendConfig{
			{URL: "http://machine0:8000"},
			{URL: "http://machine1:8000", TargetQPS: 3.0},
		},
		Admission: AdmissionConfig{TargetQPS: 1.5},
	}

	if got := cfg.TargetQPSFor(0); got != 1.5 {
		t.Errorf("TargetQPSFor(0) = %v, want 1.5", got)
	}
	if got := cfg.TargetQPSFor(1); got != 3.0 {
		t.Errorf("TargetQPSFor(1) = %v, want 3.0", got)
	}
	if got := cfg.TargetQPSFor(7); got != 1.5 {
		t.Errorf("TargetQPSFor(7) = %v, want fallback 1.5", got)
	}
}
