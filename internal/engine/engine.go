// Package engine orchestrates the layered approval gates. Gates run in
// fixed order and any failure halts evaluation with a denial naming the
// failing layer. The engine fails closed: ambiguity, malformed input, and
// internal errors all resolve to DENIED, never APPROVED.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/toolgate-dev/toolgate/api"
	"github.com/toolgate-dev/toolgate/internal/audit"
	"github.com/toolgate-dev/toolgate/internal/classify"
	"github.com/toolgate-dev/toolgate/internal/match"
	"github.com/toolgate-dev/toolgate/internal/resource"
	"github.com/toolgate-dev/toolgate/internal/toolcheck"
)

// Options configures the engine's own gates. Resource and tool policy live
// in the injected validators.
type Options struct {
	// AutoApprovalEnabled is the operator's explicit opt-in. Off by
	// default: without it every call is denied at the consent gate.
	AutoApprovalEnabled bool

	// ApprovedAgents is the agent-identity allow-list (wildcards allowed).
	ApprovedAgents []string

	// BreakerThreshold is the number of consecutive denials that opens the
	// circuit breaker. Values below 1 take the default of 5.
	BreakerThreshold int
}

// Engine evaluates tool calls. Safe for concurrent use; the only mutable
// state is the circuit breaker.
type Engine struct {
	opts      Options
	tools     *toolcheck.Validator
	resources *resource.Validator
	store     audit.Store
	logger    *slog.Logger
	breaker   *breaker
}

// New creates an approval engine.
func New(opts Options, tools *toolcheck.Validator, resources *resource.Validator, store audit.Store, logger *slog.Logger) *Engine {
	if opts.BreakerThreshold < 1 {
		opts.BreakerThreshold = 5
	}
	return &Engine{
		opts:      opts,
		tools:     tools,
		resources: resources,
		store:     store,
		logger:    logger,
		breaker:   newBreaker(opts.BreakerThreshold),
	}
}

// ResetBreaker manually closes the circuit breaker. There is no automatic
// decay.
func (e *Engine) ResetBreaker() {
	e.breaker.reset()
	e.logger.Info("circuit breaker reset")
}

// Classify exposes the detected resource class for a call.
func (e *Engine) Classify(call *api.ToolCall) api.ResourceClass {
	if call == nil {
		return api.ClassUnknown
	}
	return classify.Detect(call.Name, call.Parameters)
}

// Evaluate runs all gates on one call and returns the final decision.
func (e *Engine) Evaluate(ctx context.Context, call *api.ToolCall) (decision *api.Decision) {
	start := time.Now()
	fromBreaker := false

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked, failing closed", "panic", r)
			decision = api.Deny("internal", "internal evaluation error", 1.0)
		}
		if decision != nil && !fromBreaker {
			if e.breaker.observe(decision.Approved) {
				e.logger.Warn("circuit breaker tripped",
					"threshold", e.opts.BreakerThreshold)
			}
		}
	}()

	// An open breaker denies without re-evaluating and without extending
	// the denial streak.
	if e.breaker.isOpen() {
		fromBreaker = true
		d := api.Deny(api.LayerCircuitBreaker, "circuit breaker open; manual reset required", 1.0)
		e.auditGate(ctx, call, api.LayerCircuitBreaker, d, start)
		return d
	}

	// Gate 1: the call must come from a delegated agent-execution context.
	if call == nil || call.Name == "" || call.Agent == "" {
		d := api.Deny(api.LayerContext, "call did not originate from a delegated agent context", 1.0)
		e.auditGate(ctx, call, api.LayerContext, d, start)
		return d
	}
	e.auditGate(ctx, call, api.LayerContext, nil, start)

	// Gate 2: explicit operator consent to auto-approval.
	if !e.opts.AutoApprovalEnabled {
		d := api.Deny(api.LayerConsent, "auto-approval is not enabled", 1.0)
		e.auditGate(ctx, call, api.LayerConsent, d, start)
		return d
	}
	e.auditGate(ctx, call, api.LayerConsent, nil, start)

	// Gate 3: invoking agent identity.
	if !match.NameAny(e.opts.ApprovedAgents, call.Agent) {
		d := api.Deny(api.LayerAgentAllowlist, "agent is not on the approved list", 1.0)
		e.auditGate(ctx, call, api.LayerAgentAllowlist, d, start)
		return d
	}
	e.auditGate(ctx, call, api.LayerAgentAllowlist, nil, start)

	// Gate 4: structural tool validation (audits itself).
	if d := e.tools.Validate(ctx, call); !d.Approved {
		return withLayer(d, api.LayerToolAllowlist)
	}

	// Gate 5: resource-class permission checks (audit themselves).
	if d := e.resourceGate(ctx, call, start); !d.Approved {
		return withLayer(d, api.LayerResource)
	}

	d := api.Approve("all gates passed", 1.0)
	e.auditGate(ctx, call, "decision", d, start)
	return d
}

// resourceGate dispatches to the permission validator for the detected
// resource class, extracting typed values from the parameter map. The
// validators write their own audit records; decisions made here without a
// validator call go through gateDecision so the gate still leaves a record.
func (e *Engine) resourceGate(ctx context.Context, call *api.ToolCall, start time.Time) *api.Decision {
	// Env reads ride on top of the class system.
	if name, ok := classify.LooksLikeEnvAccess(call.Name, call.Parameters); ok {
		return e.resources.ValidateEnv(ctx, name)
	}

	class := classify.Detect(call.Name, call.Parameters)
	switch class {
	case api.ClassFilesystem:
		path, ok := stringParam(call.Parameters, "path", "file_path", "filename")
		if !ok {
			return e.gateDecision(ctx, call, api.Deny(string(api.ClassFilesystem), "malformed input", 1.0), start)
		}
		if isWriteAccess(call.Name) {
			return e.resources.ValidateWrite(ctx, path)
		}
		return e.resources.ValidateRead(ctx, path)

	case api.ClassShell, api.ClassCodeExecution:
		if cmd, ok := stringParam(call.Parameters, "command"); ok {
			return e.resources.ValidateShell(ctx, cmd)
		}
		if class == api.ClassShell {
			return e.gateDecision(ctx, call, api.Deny(string(api.ClassShell), "malformed input", 1.0), start)
		}
		// Code execution without a shell command touches no external
		// resource beyond what the tool gate already vetted.
		return e.gateDecision(ctx, call, api.Approve("code execution allow-listed", 0.9), start)

	case api.ClassNetwork:
		rawURL, ok := stringParam(call.Parameters, "url", "uri")
		if !ok {
			return e.gateDecision(ctx, call, api.Deny(string(api.ClassNetwork), "malformed input", 1.0), start)
		}
		return e.resources.ValidateNetwork(ctx, rawURL)

	case api.ClassIssueAPI:
		if rawURL, ok := stringParam(call.Parameters, "url", "uri"); ok {
			return e.resources.ValidateNetwork(ctx, rawURL)
		}
		return e.gateDecision(ctx, call, api.Approve("issue tracker operation", 1.0), start)

	case api.ClassVersionControl:
		if cmd, ok := stringParam(call.Parameters, "command"); ok {
			return e.resources.ValidateShell(ctx, cmd)
		}
		return e.gateDecision(ctx, call, api.Approve("version control operation", 1.0), start)

	default:
		return e.gateDecision(ctx, call,
			api.Deny("unknown resource class", "resource class could not be determined", 0.5), start)
	}
}

// gateDecision audits a decision the resource gate makes itself, so every
// executed gate leaves exactly one record.
func (e *Engine) gateDecision(ctx context.Context, call *api.ToolCall, d *api.Decision, start time.Time) *api.Decision {
	layer := api.LayerResource
	if len(d.LayerViolations) > 0 {
		layer = d.LayerViolations[0]
	}
	e.auditGate(ctx, call, layer, d, start)
	return d
}

// auditGate writes one record for an engine-owned gate. A nil decision
// records a pass-through.
func (e *Engine) auditGate(ctx context.Context, call *api.ToolCall, layer string, d *api.Decision, start time.Time) {
	rec := &api.AuditRecord{
		Layer:    layer,
		Approved: true,
		Duration: time.Since(start),
	}
	if d != nil {
		rec.Approved = d.Approved
		rec.Reason = d.Reason
	}
	if call != nil {
		rec.CallDigest = call.Digest()
		rec.Tool = call.Name
		rec.Agent = call.Agent
		rec.Class = classify.Detect(call.Name, call.Parameters)
	}
	if err := e.store.Write(ctx, rec); err != nil {
		e.logger.Warn("audit write failed", "layer", layer, "error", err)
	}
}

// withLayer prepends the gate name to a sub-validator's violation list.
func withLayer(d *api.Decision, layer string) *api.Decision {
	violations := d.LayerViolations
	if len(violations) == 0 || violations[0] != layer {
		violations = append([]string{layer}, violations...)
	}
	return &api.Decision{
		Approved:        d.Approved,
		Reason:          d.Reason,
		LayerViolations: violations,
		Confidence:      d.Confidence,
	}
}

// stringParam extracts the first present key as a non-empty string. All
// security-relevant extraction goes through here rather than ad hoc
// indexing.
func stringParam(params map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := params[key]; ok {
			s, isStr := v.(string)
			return s, isStr && s != ""
		}
	}
	return "", false
}

func isWriteAccess(name string) bool {
	lower := strings.ToLower(name)
	for _, verb := range []string{"write", "edit", "delete", "create", "move", "copy", "append", "remove"} {
		if strings.Contains(lower, verb) {
			return true
		}
	}
	return false
}
