// Package toolcheck performs deep structural inspection of a single tool
// call: list membership, injection scanning, sensitive paths, SSRF-shaped
// parameters, payload size, and path containment for destructive shell
// commands. Allow-list semantics throughout: absence from the list is a
// deny.
package toolcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/audit"
	"github.com/toolgate-dev/toolgate/internal/match"
	"github.com/toolgate-dev/toolgate/internal/resource"
)

// Limits for the parameter-size sanity check.
const (
	maxTotalParamBytes  = 256 << 10
	maxSingleParamBytes = 64 << 10
)

type injectionPattern struct {
	name  string
	regex *regexp.Regexp
}

var injectionPatterns = []injectionPattern{
	{"command_substitution", regexp.MustCompile("\\$\\(|`")},
	{"command_chaining", regexp.MustCompile(`&&|\|\||;\s*(rm|curl|wget|nc|sh|bash|python)\b`)},
	{"pipe_to_shell", regexp.MustCompile(`\|\s*(sh|bash|zsh|dash)\b`)},
	{"ifs_abuse", regexp.MustCompile(`\$\{?IFS`)},
	{"null_byte", regexp.MustCompile("\x00")},
}

// Config tunes the tool validator. Zero-value lists take the defaults.
type Config struct {
	AllowedTools []string
	DeniedTools  []string

	// ProjectRoot is the containment root for destructive commands.
	ProjectRoot string

	// ExtraRoots are whitelisted directories (user config dirs) that
	// destructive commands may also touch.
	ExtraRoots []string
}

// Validator inspects one call at a time. Safe for concurrent use.
type Validator struct {
	allowed []string
	denied  []string
	rules   RuleEngine
	store   audit.Store
	logger  *slog.Logger

	root       string
	extraRoots []string
}

// Option configures a Validator.
type Option func(*Validator)

// WithRuleEngine installs a rule engine consulted after the static checks
// pass. The default is a no-op engine that approves everything.
func WithRuleEngine(e RuleEngine) Option {
	return func(v *Validator) { v.rules = e }
}

// NewValidator creates a tool validator.
func NewValidator(cfg Config, store audit.Store, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		allowed:    cfg.AllowedTools,
		denied:     cfg.DeniedTools,
		rules:      nopRuleEngine{},
		store:      store,
		logger:     logger,
		root:       cfg.ProjectRoot,
		extraRoots: cfg.ExtraRoots,
	}
	if v.allowed == nil {
		v.allowed = defaultAllowedTools()
	}
	if v.denied == nil {
		v.denied = defaultDeniedTools()
	}
	if v.root == "" {
		v.root = "."
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the ordered structural checks on one call.
func (v *Validator) Validate(ctx context.Context, call *api.ToolCall) *api.Decision {
	start := time.Now()
	d, threat := v.validate(ctx, call)
	v.audit(ctx, call, d, threat, start)
	return d
}

func (v *Validator) validate(ctx context.Context, call *api.ToolCall) (*api.Decision, string) {
	if call == nil || strings.TrimSpace(call.Name) == "" {
		return api.Deny("tool allow-list", "malformed input", 1.0), ""
	}

	// 1. Denylist: highest precedence.
	if match.NameAny(v.denied, call.Name) {
		return api.Deny("tool denylist", "tool is on the denylist", 1.0), ""
	}

	// 2. Allow-list membership.
	if !match.NameAny(v.allowed, call.Name) {
		return api.Deny("tool allow-list", "tool matches no allow pattern", 1.0), ""
	}

	// 3. Injection scan over every string parameter.
	if name, param, hit := v.scanInjection(call.Parameters); hit {
		return api.Deny("injection scan",
			fmt.Sprintf("parameter %q matches injection pattern %s", param, name), 1.0), api.ThreatInjection
	}

	// 4. Sensitive-path detection.
	if param, hit := v.scanSensitivePaths(call.Parameters); hit {
		return api.Deny("sensitive path",
			fmt.Sprintf("parameter %q names a sensitive file", param), 1.0), api.ThreatSensitivePath
	}

	// 5. SSRF-style addresses in URL-shaped parameters.
	if param, hit := v.scanURLs(call.Parameters); hit {
		return api.Deny("ssrf parameter",
			fmt.Sprintf("parameter %q targets an internal address", param), 1.0), api.ThreatSSRF
	}

	// 6. Parameter-size sanity.
	if oversized(call.Parameters) {
		return api.Deny("parameter size", "parameters exceed the size limit", 1.0), api.ThreatOversized
	}

	// Path containment for destructive shell commands.
	if cmd, ok := call.Parameters["command"].(string); ok {
		if d, threat := v.checkContainment(cmd); d != nil {
			return d, threat
		}
	}

	// Optional rule-engine override; evaluation errors fail closed.
	result, err := v.rules.Evaluate(ctx, &RuleInput{
		Tool:       call.Name,
		Agent:      call.Agent,
		Parameters: call.Parameters,
	})
	if err != nil {
		v.logger.Warn("rule engine evaluation failed", "tool", call.Name, "error", err)
		return api.Deny("rule engine", "rule evaluation error", 1.0), ""
	}
	if !result.Allow {
		reason := result.Message
		if reason == "" {
			reason = "denied by rule " + result.Rule
		}
		return api.Deny("rule engine", reason, 1.0), ""
	}

	return api.Approve("tool allow-list", 1.0), ""
}

func (v *Validator) audit(ctx context.Context, call *api.ToolCall, d *api.Decision, threat string, start time.Time) {
	layer := api.LayerToolAllowlist
	if len(d.LayerViolations) > 0 {
		layer = d.LayerViolations[0]
	}
	rec := &api.AuditRecord{
		Layer:    layer,
		Approved: d.Approved,
		Reason:   d.Reason,
		Threat:   threat,
		Duration: time.Since(start),
	}
	if call != nil {
		rec.CallDigest = call.Digest()
		rec.Tool = call.Name
		rec.Agent = call.Agent
	}
	if err := v.store.Write(ctx, rec); err != nil {
		v.logger.Warn("audit write failed", "tool", rec.Tool, "error", err)
	}
}

// scanInjection walks all string values, including nested maps and slices.
func (v *Validator) scanInjection(params map[string]any) (pattern, param string, hit bool) {
	for key, val := range params {
		for _, s := range stringValues(val) {
			for _, p := range injectionPatterns {
				if p.regex.MatchString(s) {
					return p.name, key, true
				}
			}
		}
	}
	return "", "", false
}

func (v *Validator) scanSensitivePaths(params map[string]any) (param string, hit bool) {
	for key, val := range params {
		for _, s := range stringValues(val) {
			if looksLikePath(s) && resource.SensitivePath(s) {
				return key, true
			}
		}
	}
	return "", false
}

// scanURLs statically rejects URL parameters whose host is a literal
// internal address or metadata hostname. Name-based targets are left to the
// resource gate, which resolves DNS.
func (v *Validator) scanURLs(params map[string]any) (param string, hit bool) {
	for key, val := range params {
		for _, s := range stringValues(val) {
			if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
				continue
			}
			u, err := url.Parse(s)
			if err != nil {
				continue
			}
			host := strings.ToLower(u.Hostname())
			if resource.MetadataHostname(host) {
				return key, true
			}
			if ip := net.ParseIP(host); ip != nil && resource.BlockedAddress(ip) {
				return key, true
			}
		}
	}
	return "", false
}

func oversized(params map[string]any) bool {
	total := 0
	for _, val := range params {
		for _, s := range stringValues(val) {
			if len(s) > maxSingleParamBytes {
				return true
			}
			total += len(s)
		}
	}
	if total > maxTotalParamBytes {
		return true
	}
	// Non-string payloads count through their encoded size.
	if data, err := json.Marshal(params); err == nil && len(data) > maxTotalParamBytes {
		return true
	}
	return false
}

func stringValues(val any) []string {
	switch t := val.(type) {
	case string:
		return []string{t}
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, stringValues(item)...)
		}
		return out
	case map[string]any:
		var out []string
		for _, item := range t {
			out = append(out, stringValues(item)...)
		}
		return out
	default:
		return nil
	}
}

func looksLikePath(s string) bool {
	return strings.ContainsRune(s, '/') || strings.HasPrefix(s, "~") || strings.HasPrefix(s, ".")
}
