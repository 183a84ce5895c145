package policy

// SecurityPolicy is the versioned allow-list document consumed by the
// validators. Every section is an allow-list: a resource matching no
// pattern is denied by default. The policy is immutable after load;
// replace the whole object to reload.
type SecurityPolicy struct {
	Version     int               `yaml:"version" json:"version"`
	Profile     string            `yaml:"profile" json:"profile"`
	Filesystem  FilesystemPolicy  `yaml:"filesystem" json:"filesystem"`
	Shell       ShellPolicy       `yaml:"shell" json:"shell"`
	Network     NetworkPolicy     `yaml:"network" json:"network"`
	Environment EnvironmentPolicy `yaml:"environment" json:"environment"`
}

// FilesystemPolicy holds read and write path allow-lists (doublestar globs).
type FilesystemPolicy struct {
	Read  []string `yaml:"read" json:"read"`
	Write []string `yaml:"write" json:"write"`
}

// ShellPolicy holds the command allow-list. Entries without wildcards are
// exact invocations; entries with `*`/`?` match the full command string.
type ShellPolicy struct {
	AllowedCommands []string `yaml:"allowed_commands" json:"allowed_commands"`
}

// NetworkPolicy holds the outbound domain allow-list.
type NetworkPolicy struct {
	AllowedDomains []string `yaml:"allowed_domains" json:"allowed_domains"`
}

// EnvironmentPolicy holds the environment-variable allow-list plus an
// explicit exception list for names that would otherwise trip the
// secret-name check.
type EnvironmentPolicy struct {
	AllowedVars      []string `yaml:"allowed_vars" json:"allowed_vars"`
	SecretExceptions []string `yaml:"secret_exceptions,omitempty" json:"secret_exceptions,omitempty"`
}

// Profile names for the built-in templates.
const (
	ProfileDevelopment = "development"
	ProfileTesting     = "testing"
	ProfileProduction  = "production"
	ProfileMinimal     = "minimal"
)

// KnownProfiles lists the profile names BuildProfile accepts.
func KnownProfiles() []string {
	return []string{ProfileDevelopment, ProfileTesting, ProfileProduction, ProfileMinimal}
}
