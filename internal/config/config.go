// Package config loads eqlproxy's YAML configuration: where to listen,
// the single upstream PostgreSQL server to relay to, where the schema
// file and Cryptor endpoint live, and the admin API's bind address.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for eqlproxy.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Upstream    UpstreamConfig    `yaml:"upstream"`
	Schema      SchemaConfig      `yaml:"schema"`
	Cryptor     CryptorConfig     `yaml:"cryptor"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
}

// ListenConfig defines the ports and bind addresses eqlproxy listens on.
type ListenConfig struct {
	PostgresPort int    `yaml:"postgres_port"`
	APIPort      int    `yaml:"api_port"`
	APIBind      string `yaml:"api_bind"`
	TLSCert      string `yaml:"tls_cert"`
	TLSKey       string `yaml:"tls_key"`
	// MaxConnections is read and defaulted here, but nothing enforces
	// it: the number of concurrent client connections is not limited.
	MaxConnections int `yaml:"max_connections"`
}

// TLSEnabled returns true if both TLS cert and key paths are configured.
func (lc ListenConfig) TLSEnabled() bool {
	return lc.TLSCert != "" && lc.TLSKey != ""
}

// UpstreamConfig names the single real PostgreSQL server this proxy
// relays every connection to (§4.2 — one upstream, not a pool of
// tenants).
type UpstreamConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	DBName      string        `yaml:"dbname"`
	RequireTLS  bool          `yaml:"require_tls"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// SchemaConfig locates the encrypted-column mapping file and its
// reload policy (§4.3).
type SchemaConfig struct {
	Path         string        `yaml:"path"`
	ReloadOnSIGHUP bool        `yaml:"reload_on_sighup"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
}

// CryptorConfig carries the keyset service connection details (§6).
type CryptorConfig struct {
	Endpoint      string `yaml:"endpoint"`
	DefaultKeyset string `yaml:"default_keyset"`
	// AllowClientKeysetOverride, when false while DefaultKeyset is set,
	// makes any client attempt to SET cipherstash.keyset_... a fatal
	// AuthPolicy fault (§7). With no DefaultKeyset such a SET is allowed.
	AllowClientKeysetOverride bool `yaml:"allow_client_keyset_override"`
}

// HealthCheckConfig tunes how often and how patiently the health
// checker probes the upstream server.
type HealthCheckConfig struct {
	Interval          time.Duration `yaml:"interval"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with env var substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.PostgresPort == 0 {
		cfg.Listen.PostgresPort = 6432
	}
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 9090
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "127.0.0.1"
	}
	if cfg.Listen.MaxConnections == 0 {
		cfg.Listen.MaxConnections = 1000
	}
	if cfg.Upstream.Port == 0 {
		cfg.Upstream.Port = 5432
	}
	if cfg.Upstream.DialTimeout == 0 {
		cfg.Upstream.DialTimeout = 5 * time.Second
	}
	if cfg.Schema.WatchInterval == 0 {
		cfg.Schema.WatchInterval = 30 * time.Second
	}
	if cfg.HealthCheck.Interval == 0 {
		cfg.HealthCheck.Interval = 30 * time.Second
	}
	if cfg.HealthCheck.FailureThreshold == 0 {
		cfg.HealthCheck.FailureThreshold = 3
	}
	if cfg.HealthCheck.ConnectionTimeout == 0 {
		cfg.HealthCheck.ConnectionTimeout = 5 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Upstream.Host == "" {
		return fmt.Errorf("upstream: host is required")
	}
	if cfg.Upstream.Port < 0 || cfg.Upstream.Port > 65535 {
		return fmt.Errorf("upstream: invalid port %d", cfg.Upstream.Port)
	}
	if cfg.Upstream.DBName == "" {
		return fmt.Errorf("upstream: dbname is required")
	}
	if cfg.Schema.Path == "" {
		return fmt.Errorf("schema: path is required")
	}
	if cfg.Listen.PostgresPort < 0 || cfg.Listen.PostgresPort > 65535 {
		return fmt.Errorf("listen: invalid postgres_port %d", cfg.Listen.PostgresPort)
	}
	return nil
}

