package cli

import (
	"fmt"

	"github.com/toolgate-dev/toolgate/internal/audit"
	"github.com/toolgate-dev/toolgate/internal/config"
	"github.com/toolgate-dev/toolgate/internal/engine"
	"github.com/toolgate-dev/toolgate/internal/policy"
	"github.com/toolgate-dev/toolgate/internal/resource"
	"github.com/toolgate-dev/toolgate/internal/toolcheck"
)

// loadConfig reads the --config file or falls back to the deny-by-default
// configuration.
func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.DefaultConfig(), nil
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openAuditStore builds the configured audit backend.
func openAuditStore(cfg *config.Config) (audit.Store, error) {
	switch cfg.AuditBackend {
	case config.AuditBackendSQLite:
		return audit.NewSQLiteStore(cfg.AuditLogPath)
	case config.AuditBackendNone:
		return audit.NopStore{}, nil
	default:
		return audit.NewJSONLStore(cfg.AuditLogPath, audit.JSONLOptions{}), nil
	}
}

// buildEngine wires config, policy, audit backend, and validators into a
// ready approval engine. The caller owns closing the returned store.
func buildEngine(cfg *config.Config) (*engine.Engine, audit.Store, error) {
	store, err := openAuditStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit store: %w", err)
	}

	pol := policy.Resolve(cfg.PolicyOverridePath, cfg.ProjectRoot, cfg.ActiveProfile, logger)

	resources := resource.NewValidator(pol, store, logger,
		resource.WithProjectRoot(cfg.ProjectRoot))

	var toolOpts []toolcheck.Option
	if cfg.RegoPolicyPath != "" {
		rules, err := toolcheck.NewRegoEngine(cfg.RegoPolicyPath)
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("loading rego policy: %w", err)
		}
		toolOpts = append(toolOpts, toolcheck.WithRuleEngine(rules))
	}
	tools := toolcheck.NewValidator(toolcheck.Config{
		ProjectRoot: cfg.ProjectRoot,
	}, store, logger, toolOpts...)

	eng := engine.New(engine.Options{
		AutoApprovalEnabled: cfg.AutoApprovalEnabled,
		ApprovedAgents:      cfg.ApprovedAgents,
		BreakerThreshold:    cfg.CircuitBreakerThreshold,
	}, tools, resources, store, logger)

	return eng, store, nil
}
