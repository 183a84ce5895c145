package resource

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/match"
)

// Commands denied regardless of profile. Checked before the allow-list so a
// permissive pattern like "rm *" can never resurrect them.
var deniedCommandPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"rm -fr /",
	"rm -fr /*",
	"rm -rf ~",
	"rm -rf ~/*",
	"mkfs*",
	"dd if=* of=/dev/*",
	"shutdown*",
	"reboot*",
	"halt*",
	"chmod -R 777 /*",
	"chown -R * /*",
	":(){*",
	"> /dev/sd*",
}

// Metacharacters that allow chaining, substitution, or redirection.
var shellMetachars = regexp.MustCompile("[;&|`$><\n]")

// DeniedCommand reports whether a command hits the hardcoded denylist.
// Exported for the tool validator.
func DeniedCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	for _, p := range deniedCommandPatterns {
		if match.HasWildcard(p) {
			if match.Command(p, cmd) {
				return true
			}
		} else if cmd == p {
			return true
		}
	}
	return false
}

// ValidateShell decides a shell command. Commands carrying chaining or
// substitution metacharacters are denied unless the full command is an
// exact allow-listed invocation.
func (v *Validator) ValidateShell(ctx context.Context, command string) *api.Decision {
	start := time.Now()

	if emptyOrBinary(command) {
		d := malformed("shell")
		v.record(ctx, api.ClassShell, command, d, "", start)
		return d
	}

	cmd := strings.TrimSpace(command)

	if DeniedCommand(cmd) {
		d := api.Deny("shell denylist", "command is on the denylist", 1.0)
		v.record(ctx, api.ClassShell, command, d, api.ThreatInjection, start)
		return d
	}

	matched, exact := match.CommandAny(v.policy.Shell.AllowedCommands, cmd)

	if shellMetachars.MatchString(cmd) && !exact {
		d := api.Deny("shell injection", "command contains shell metacharacters", 1.0)
		v.record(ctx, api.ClassShell, command, d, api.ThreatInjection, start)
		return d
	}

	if !matched {
		d := api.Deny("shell allow-list", "command matches no allow pattern", 1.0)
		v.record(ctx, api.ClassShell, command, d, "", start)
		return d
	}

	confidence := 0.9
	reason := "shell allow-list pattern"
	if exact {
		confidence = 1.0
		reason = "shell allow-list exact match"
	}
	d := api.Approve(reason, confidence)
	v.record(ctx, api.ClassShell, command, d, "", start)
	return d
}
