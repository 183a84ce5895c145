package policy

import "fmt"

// BuildProfile generates a built-in policy template programmatically so the
// templates can never drift from the shape Validate expects. Unknown names
// return the minimal profile (fail closed).
func BuildProfile(name string) *SecurityPolicy {
	switch name {
	case ProfileDevelopment:
		return &SecurityPolicy{
			Version: 1,
			Profile: ProfileDevelopment,
			Filesystem: FilesystemPolicy{
				Read:  []string{"**", "src/**", "docs/**", "/tmp/**"},
				Write: []string{"**", "src/**", "/tmp/**"},
			},
			Shell: ShellPolicy{
				AllowedCommands: []string{
					"ls", "ls *", "cat *", "grep *", "find *",
					"git *", "go *", "make *", "npm *", "pip *",
					"pytest", "pytest *", "python *", "node *",
					"rm *", "mv *", "cp *", "mkdir *", "touch *",
				},
			},
			Network: NetworkPolicy{
				// Open network; the SSRF guard still blocks private ranges.
				AllowedDomains: []string{"*"},
			},
			Environment: EnvironmentPolicy{
				AllowedVars: []string{
					"PATH", "HOME", "USER", "SHELL", "LANG", "LC_*",
					"TERM", "EDITOR", "PWD", "TMPDIR", "GO*", "NODE_*",
				},
			},
		}

	case ProfileTesting:
		return &SecurityPolicy{
			Version: 1,
			Profile: ProfileTesting,
			Filesystem: FilesystemPolicy{
				Read:  []string{"**", "src/**", "tests/**"},
				Write: []string{"test-output/**", "/tmp/**"},
			},
			Shell: ShellPolicy{
				AllowedCommands: []string{
					"pytest", "pytest *", "go test *", "npm test", "npm test *",
					"make test", "ls", "ls *", "cat *",
				},
			},
			Network: NetworkPolicy{
				AllowedDomains: []string{"*.test", "*.example.com", "staging.internal.example.com"},
			},
			Environment: EnvironmentPolicy{
				AllowedVars: []string{"PATH", "HOME", "LANG", "TERM", "CI", "TEST_*"},
			},
		}

	case ProfileProduction:
		return &SecurityPolicy{
			Version: 1,
			Profile: ProfileProduction,
			Filesystem: FilesystemPolicy{
				Read:  []string{"config/**", "data/**", "logs/**"},
				Write: []string{"logs/**", "data/out/**"},
			},
			Shell: ShellPolicy{
				AllowedCommands: []string{"ls", "ls *", "cat *", "tail *", "head *", "wc *"},
			},
			Network: NetworkPolicy{
				AllowedDomains: []string{"api.github.com", "*.googleapis.com"},
			},
			Environment: EnvironmentPolicy{
				AllowedVars: []string{"PATH", "HOME", "LANG", "TZ"},
			},
		}

	default:
		return &SecurityPolicy{
			Version: 1,
			Profile: ProfileMinimal,
			Filesystem: FilesystemPolicy{
				Read: []string{"README*"},
			},
			Shell: ShellPolicy{
				AllowedCommands: []string{"ls"},
			},
			Network:     NetworkPolicy{},
			Environment: EnvironmentPolicy{AllowedVars: []string{"PATH", "HOME"}},
		}
	}
}

// Overrides selectively replaces sections of a base policy. Nil slices
// leave the base value in place; set slices win wholesale, so an override
// can both widen and narrow a section.
type Overrides struct {
	Profile          string   `yaml:"profile,omitempty"`
	FilesystemRead   []string `yaml:"filesystem_read,omitempty"`
	FilesystemWrite  []string `yaml:"filesystem_write,omitempty"`
	AllowedCommands  []string `yaml:"allowed_commands,omitempty"`
	AllowedDomains   []string `yaml:"allowed_domains,omitempty"`
	AllowedVars      []string `yaml:"allowed_vars,omitempty"`
	SecretExceptions []string `yaml:"secret_exceptions,omitempty"`
}

// Customize deep-merges overrides onto a copy of base and validates the
// result. The base is never mutated.
func Customize(base *SecurityPolicy, ov Overrides) (*SecurityPolicy, error) {
	merged := *base
	merged.Filesystem.Read = append([]string(nil), base.Filesystem.Read...)
	merged.Filesystem.Write = append([]string(nil), base.Filesystem.Write...)
	merged.Shell.AllowedCommands = append([]string(nil), base.Shell.AllowedCommands...)
	merged.Network.AllowedDomains = append([]string(nil), base.Network.AllowedDomains...)
	merged.Environment.AllowedVars = append([]string(nil), base.Environment.AllowedVars...)
	merged.Environment.SecretExceptions = append([]string(nil), base.Environment.SecretExceptions...)

	if ov.Profile != "" {
		merged.Profile = ov.Profile
	}
	if ov.FilesystemRead != nil {
		merged.Filesystem.Read = ov.FilesystemRead
	}
	if ov.FilesystemWrite != nil {
		merged.Filesystem.Write = ov.FilesystemWrite
	}
	if ov.AllowedCommands != nil {
		merged.Shell.AllowedCommands = ov.AllowedCommands
	}
	if ov.AllowedDomains != nil {
		merged.Network.AllowedDomains = ov.AllowedDomains
	}
	if ov.AllowedVars != nil {
		merged.Environment.AllowedVars = ov.AllowedVars
	}
	if ov.SecretExceptions != nil {
		merged.Environment.SecretExceptions = ov.SecretExceptions
	}

	if err := Validate(&merged); err != nil {
		return nil, fmt.Errorf("customized policy invalid: %w", err)
	}
	return &merged, nil
}
