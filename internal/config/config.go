// Package config holds the runtime configuration for toolgate, loaded from
// a YAML file with conservative defaults. The zero configuration denies
// everything: auto-approval is opt-in and the agent allow-list starts empty.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Audit backend names accepted in the config file.
const (
	AuditBackendJSONL  = "jsonl"
	AuditBackendSQLite = "sqlite"
	AuditBackendNone   = "none"
)

// Config is the runtime configuration.
type Config struct {
	// AutoApprovalEnabled is the operator's explicit consent to automatic
	// approval. Off by default.
	AutoApprovalEnabled bool `yaml:"auto_approval_enabled"`

	// ApprovedAgents lists agent identities (wildcards allowed) permitted
	// to invoke tools.
	ApprovedAgents []string `yaml:"approved_agents"`

	// ActiveProfile selects a built-in policy profile when no policy file
	// is found.
	ActiveProfile string `yaml:"active_profile"`

	// PolicyOverridePath points at an explicit policy file, consulted
	// before the project-local one.
	PolicyOverridePath string `yaml:"policy_override_path"`

	// ProjectRoot is the directory relative paths and destructive commands
	// are confined to. Defaults to the working directory.
	ProjectRoot string `yaml:"project_root"`

	// CircuitBreakerThreshold is the consecutive-denial count that opens
	// the breaker.
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold"`

	// AuditBackend selects the audit store: jsonl, sqlite, or none.
	AuditBackend string `yaml:"audit_backend"`

	// AuditLogPath is the JSONL file or SQLite database path.
	AuditLogPath string `yaml:"audit_log_path"`

	// RegoPolicyPath optionally installs a Rego rule hook on the tool
	// validator.
	RegoPolicyPath string `yaml:"rego_policy_path"`
}

// Load reads a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML config data and applies defaults.
func LoadBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.expandPaths()
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AuditBackend {
	case AuditBackendJSONL, AuditBackendSQLite, AuditBackendNone:
	default:
		return fmt.Errorf("unknown audit_backend %q", c.AuditBackend)
	}
	if c.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("circuit_breaker_threshold must be at least 1, got %d", c.CircuitBreakerThreshold)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.PolicyOverridePath = expandHome(c.PolicyOverridePath)
	c.ProjectRoot = expandHome(c.ProjectRoot)
	c.AuditLogPath = expandHome(c.AuditLogPath)
	c.RegoPolicyPath = expandHome(c.RegoPolicyPath)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfig returns the deny-by-default configuration used when no
// config file is given.
func DefaultConfig() *Config {
	return &Config{
		AutoApprovalEnabled:     false,
		ProjectRoot:             ".",
		CircuitBreakerThreshold: DefaultBreakerThreshold,
		AuditBackend:            AuditBackendJSONL,
		AuditLogPath:            expandHome(DefaultAuditLogPath()),
	}
}

// MarshalYAML serializes the config for display/export.
func (c *Config) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
