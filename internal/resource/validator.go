// Package resource implements the per-resource-class permission checks
// against the active security policy. Every validator entry point returns a
// decision, writes exactly one audit record, and never panics on malformed
// input: unparseable or empty values yield a denial, not an error.
package resource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/audit"
	"github.com/toolgate-dev/toolgate/internal/policy"
)

// LookupFunc resolves a hostname to addresses. Injectable for tests and
// offline evaluation.
type LookupFunc func(host string) ([]net.IP, error)

// Validator checks resources against an immutable-after-load policy.
// Replace the whole Validator to pick up a reloaded policy.
type Validator struct {
	policy *policy.SecurityPolicy
	store  audit.Store
	logger *slog.Logger
	lookup LookupFunc
	root   string
}

// Option configures a Validator.
type Option func(*Validator)

// WithLookup replaces the DNS lookup used by the SSRF guard.
func WithLookup(fn LookupFunc) Option {
	return func(v *Validator) { v.lookup = fn }
}

// WithProjectRoot sets the directory relative paths resolve against.
func WithProjectRoot(root string) Option {
	return func(v *Validator) { v.root = root }
}

// NewValidator creates a permission validator for the given policy.
func NewValidator(pol *policy.SecurityPolicy, store audit.Store, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		policy: pol,
		store:  store,
		logger: logger,
		lookup: net.LookupIP,
		root:   ".",
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Policy returns the active policy.
func (v *Validator) Policy() *policy.SecurityPolicy { return v.policy }

const malformedReason = "malformed input"

func malformed(layer string) *api.Decision {
	return api.Deny(layer, malformedReason, 1.0)
}

// record writes the single audit entry for one validator call. Audit
// failures are logged, never surfaced as a verdict change.
func (v *Validator) record(ctx context.Context, class api.ResourceClass, target string, d *api.Decision, threat string, start time.Time) {
	layer := api.LayerResource
	if len(d.LayerViolations) > 0 {
		layer = d.LayerViolations[0]
	}
	rec := &api.AuditRecord{
		CallDigest: digest(target),
		Class:      class,
		Layer:      layer,
		Approved:   d.Approved,
		Reason:     d.Reason,
		Threat:     threat,
		Duration:   time.Since(start),
	}
	if err := v.store.Write(ctx, rec); err != nil {
		v.logger.Warn("audit write failed", "class", class, "error", err)
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

func emptyOrBinary(s string) bool {
	return strings.TrimSpace(s) == "" || strings.ContainsRune(s, 0)
}
