package resource

import (
	"context"
	"regexp"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/match"
)

// Secret-like variable names are denied even when nominally allow-listed,
// unless the policy names them in secret_exceptions.
var secretNamePattern = regexp.MustCompile(`(?i)(SECRET|TOKEN|PASSWORD|PASSWD|API_?KEY|PRIVATE|CREDENTIAL|ACCESS_KEY|SESSION|AUTH)`)

var validEnvName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Audit-only class: env reads ride on top of the detector's class system.
const classEnvironment = api.ResourceClass("environment")

// ValidateEnv decides a read of the environment variable name.
func (v *Validator) ValidateEnv(ctx context.Context, name string) *api.Decision {
	start := time.Now()

	if emptyOrBinary(name) || !validEnvName.MatchString(name) {
		d := malformed("environment")
		v.record(ctx, classEnvironment, name, d, "", start)
		return d
	}

	if secretNamePattern.MatchString(name) && !match.NameAny(v.policy.Environment.SecretExceptions, name) {
		d := api.Deny("secret variable", "variable name matches a secret pattern", 1.0)
		v.record(ctx, classEnvironment, name, d, api.ThreatSecretEnv, start)
		return d
	}

	if !match.NameAny(v.policy.Environment.AllowedVars, name) {
		d := api.Deny("environment allow-list", "variable matches no allow pattern", 1.0)
		v.record(ctx, classEnvironment, name, d, "", start)
		return d
	}

	d := api.Approve("environment allow-list", 1.0)
	v.record(ctx, classEnvironment, name, d, "", start)
	return d
}
