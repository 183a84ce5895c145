package policy

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrPolicyNotFound is returned when no tier of the cascade yields a
// loadable policy file (the built-in fallback still applies).
var ErrPolicyNotFound = errors.New("no policy file found")

// Packaged default policy, compiled into the binary so the second cascade
// tier is always available.
//
//go:embed default_policy.yaml
var packagedDefault []byte

// LoadFile reads and validates a YAML policy file.
func LoadFile(path string) (*SecurityPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML policy data.
func LoadBytes(data []byte) (*SecurityPolicy, error) {
	var sp SecurityPolicy
	if err := yaml.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("parsing policy YAML: %w", err)
	}
	if err := Validate(&sp); err != nil {
		return nil, err
	}
	return &sp, nil
}

// Save serializes a policy to a YAML file.
func Save(sp *SecurityPolicy, path string) error {
	if err := Validate(sp); err != nil {
		return err
	}
	data, err := yaml.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshaling policy: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating policy directory: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}

// Validate performs the schema check. A malformed policy is rejected whole,
// never partially applied.
func Validate(sp *SecurityPolicy) error {
	if sp.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d (expected 1)", sp.Version)
	}

	known := false
	for _, p := range append(KnownProfiles(), "custom") {
		if sp.Profile == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown profile %q", sp.Profile)
	}

	for _, section := range []struct {
		name     string
		patterns []string
	}{
		{"filesystem.read", sp.Filesystem.Read},
		{"filesystem.write", sp.Filesystem.Write},
	} {
		for _, p := range section.patterns {
			if p == "" {
				return fmt.Errorf("%s: empty pattern", section.name)
			}
			if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
				return fmt.Errorf("%s: invalid glob pattern %q", section.name, p)
			}
		}
	}

	for _, section := range []struct {
		name     string
		patterns []string
	}{
		{"shell.allowed_commands", sp.Shell.AllowedCommands},
		{"network.allowed_domains", sp.Network.AllowedDomains},
		{"environment.allowed_vars", sp.Environment.AllowedVars},
	} {
		for _, p := range section.patterns {
			if p == "" {
				return fmt.Errorf("%s: empty pattern", section.name)
			}
		}
	}

	return nil
}

// Resolve walks the cascading lookup: explicit override path (or the
// project-local .toolgate/policy.yaml), then the named built-in profile,
// then the packaged default, then the minimal built-in profile. A missing
// or invalid tier falls through to the next; the result is never
// allow-everything.
func Resolve(overridePath, projectRoot, activeProfile string, logger *slog.Logger) *SecurityPolicy {
	candidates := []string{}
	if overridePath != "" {
		candidates = append(candidates, overridePath)
	}
	if projectRoot != "" {
		candidates = append(candidates, filepath.Join(projectRoot, ".toolgate", "policy.yaml"))
	}

	for _, path := range candidates {
		sp, err := LoadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logger.Warn("skipping unusable policy file", "path", path, "error", err)
			}
			continue
		}
		logger.Info("policy loaded", "path", path, "profile", sp.Profile)
		return sp
	}

	if activeProfile != "" {
		for _, known := range KnownProfiles() {
			if activeProfile == known {
				logger.Info("using built-in profile", "profile", activeProfile)
				return BuildProfile(activeProfile)
			}
		}
		logger.Warn("unknown active profile, continuing cascade", "profile", activeProfile)
	}

	if sp, err := LoadBytes(packagedDefault); err == nil {
		logger.Info("using packaged default policy", "profile", sp.Profile)
		return sp
	} else {
		logger.Error("packaged default policy invalid", "error", err)
	}

	logger.Warn("falling back to minimal built-in policy")
	return BuildProfile(ProfileMinimal)
}
