package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
listen:
  postgres_port: 6432
  api_port: 9090

upstream:
  host: db.internal
  port: 5432
  dbname: appdb

schema:
  path: /etc/eqlproxy/schema.yaml
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.PostgresPort != 6432 {
		t.Errorf("expected postgres port 6432, got %d", cfg.Listen.PostgresPort)
	}
	if cfg.Upstream.Host != "db.internal" {
		t.Errorf("expected upstream host db.internal, got %s", cfg.Upstream.Host)
	}
	if cfg.Upstream.DBName != "appdb" {
		t.Errorf("expected dbname appdb, got %s", cfg.Upstream.DBName)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_CRYPTOR_ENDPOINT", "https://keyset.internal")
	defer os.Unsetenv("TEST_CRYPTOR_ENDPOINT")

	yaml := `
upstream:
  host: localhost
  port: 5432
  dbname: testdb
schema:
  path: /tmp/schema.yaml
cryptor:
  endpoint: ${TEST_CRYPTOR_ENDPOINT}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Cryptor.Endpoint != "https://keyset.internal" {
		t.Errorf("expected substituted endpoint, got %s", cfg.Cryptor.Endpoint)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing upstream host",
			yaml: `
upstream:
  port: 5432
  dbname: db
schema:
  path: /tmp/schema.yaml
`,
		},
		{
			name: "missing dbname",
			yaml: `
upstream:
  host: localhost
  port: 5432
schema:
  path: /tmp/schema.yaml
`,
		},
		{
			name: "missing schema path",
			yaml: `
upstream:
  host: localhost
  port: 5432
  dbname: db
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTemp(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := `
upstream:
  host: localhost
  dbname: db
schema:
  path: /tmp/schema.yaml
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen.PostgresPort != 6432 {
		t.Errorf("expected default postgres port 6432, got %d", cfg.Listen.PostgresPort)
	}
	if cfg.Listen.APIPort != 9090 {
		t.Errorf("expected default api port 9090, got %d", cfg.Listen.APIPort)
	}
	if cfg.Upstream.Port != 5432 {
		t.Errorf("expected default upstream port 5432, got %d", cfg.Upstream.Port)
	}
	if cfg.Upstream.DialTimeout != 5*time.Second {
		t.Errorf("expected default dial timeout 5s, got %v", cfg.Upstream.DialTimeout)
	}
	if cfg.HealthCheck.Interval != 30*time.Second {
		t.Errorf("expected default health check interval 30s, got %v", cfg.HealthCheck.Interval)
	}
	if cfg.HealthCheck.FailureThreshold != 3 {
		t.Errorf("expected default failure threshold 3, got %d", cfg.HealthCheck.FailureThreshold)
	}
	if cfg.HealthCheck.ConnectionTimeout != 5*time.Second {
		t.Errorf("expected default health check connection timeout 5s, got %v", cfg.HealthCheck.ConnectionTimeout)
	}
}

func TestTLSEnabled(t *testing.T) {
	lc := ListenConfig{}
	if lc.TLSEnabled() {
		t.Error("expected TLSEnabled false with no cert/key")
	}
	lc.TLSCert = "cert.pem"
	lc.TLSKey = "key.pem"
	if !lc.TLSEnabled() {
		t.Error("expected TLSEnabled true with cert and key set")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
