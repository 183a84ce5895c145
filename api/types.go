package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// ResourceClass categorizes what kind of resource a tool call touches.
type ResourceClass string

const (
	ClassFilesystem     ResourceClass = "filesystem"
	ClassVersionControl ResourceClass = "version_control"
	ClassIssueAPI       ResourceClass = "issue_api"
	ClassCodeExecution  ResourceClass = "code_execution"
	ClassShell          ResourceClass = "shell"
	ClassNetwork        ResourceClass = "network"
	ClassUnknown        ResourceClass = "unknown"
)

// Threat categories recorded in audit entries and denial reasons.
const (
	ThreatTraversal     = "path_traversal"
	ThreatSensitivePath = "sensitive_path"
	ThreatInjection     = "command_injection"
	ThreatSSRF          = "ssrf"
	ThreatSecretEnv     = "secret_env_var"
	ThreatContainment   = "path_containment"
	ThreatOversized     = "oversized_parameters"
)

// Layer names reported in Decision.LayerViolations and AuditRecord.Layer.
const (
	LayerContext        = "context"
	LayerConsent        = "consent"
	LayerAgentAllowlist = "agent_allowlist"
	LayerToolAllowlist  = "tool_allowlist"
	LayerResource       = "resource"
	LayerCircuitBreaker = "circuit_breaker"
)

// ToolCall is a single tool invocation requested by an agent pipeline.
// It is immutable once constructed.
type ToolCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Agent      string         `json:"agent,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Digest returns a stable SHA-256 digest of the call's name and parameters,
// suitable for audit records that must not echo raw arguments.
func (c *ToolCall) Digest() string {
	h := sha256.New()
	h.Write([]byte(c.Name))

	// Sort keys so the digest does not depend on map iteration order.
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		if data, err := json.Marshal(c.Parameters[k]); err == nil {
			h.Write(data)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Decision is the outcome of an authorization evaluation. It is the sole
// contract with the calling pipeline and is never mutated after creation.
//
// Confidence is deterministic: 1.0 for threat/denylist denials and clean
// approvals, 0.9 for pattern (non-exact) shell allow-list approvals, and
// 0.5 for unknown-resource-class denials.
type Decision struct {
	Approved        bool     `json:"approved"`
	Reason          string   `json:"reason"`
	LayerViolations []string `json:"layer_violations,omitempty"`
	Confidence      float64  `json:"confidence"`
}

// Approve constructs an approval decision.
func Approve(reason string, confidence float64) *Decision {
	return &Decision{Approved: true, Reason: reason, Confidence: confidence}
}

// Deny constructs a denial decision naming the violated layer.
func Deny(layer, reason string, confidence float64) *Decision {
	return &Decision{
		Approved:        false,
		Reason:          reason,
		LayerViolations: []string{layer},
		Confidence:      confidence,
	}
}

// CheckRequest is one line of the serve protocol and the input to the
// CLI `check` command.
type CheckRequest struct {
	// Op selects a control operation. Empty or "check" evaluates the call;
	// "reset_breaker" manually resets the circuit breaker.
	Op         string         `json:"op,omitempty"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Agent      string         `json:"agent,omitempty"`
}

// CheckResponse is one line of the serve protocol output.
type CheckResponse struct {
	Approved        bool          `json:"approved"`
	Reason          string        `json:"reason"`
	LayerViolations []string      `json:"layer_violations,omitempty"`
	Confidence      float64       `json:"confidence"`
	Class           ResourceClass `json:"class,omitempty"`
}
