package toolcheck

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
)

// RuleInput is the input to a rule-engine evaluation.
type RuleInput struct {
	Tool       string         `json:"tool"`
	Agent      string         `json:"agent,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// RuleResult is the output of a rule-engine evaluation.
type RuleResult struct {
	Allow   bool   `json:"allow"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message,omitempty"`
}

// RuleEngine is the capability interface for an optional richer rule
// backend consulted after the static checks pass. Call sites never branch
// on availability: when no backend is configured, the no-op engine applies.
type RuleEngine interface {
	Evaluate(ctx context.Context, input *RuleInput) (*RuleResult, error)
}

// nopRuleEngine approves everything; the static checks have already run.
type nopRuleEngine struct{}

func (nopRuleEngine) Evaluate(context.Context, *RuleInput) (*RuleResult, error) {
	return &RuleResult{Allow: true, Rule: "_none"}, nil
}

// RegoEngine implements RuleEngine with an embedded OPA/Rego policy.
//
// The policy must live in package toolgate and may define:
//
//	allow: boolean (absent means deny)
//	rule_name: string (optional)
//	message: string (optional)
//
// Input available to the policy:
//
//	input.tool: string
//	input.agent: string
//	input.parameters: object
type RegoEngine struct {
	mu    sync.RWMutex
	path  string
	query rego.PreparedEvalQuery
}

// NewRegoEngine compiles a .rego policy file.
func NewRegoEngine(path string) (*RegoEngine, error) {
	e := &RegoEngine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRegoEngineFromSource compiles raw Rego source.
func NewRegoEngineFromSource(source string) (*RegoEngine, error) {
	e := &RegoEngine{}
	if err := e.loadSource(source); err != nil {
		return nil, err
	}
	return e, nil
}

// Evaluate runs the compiled policy. A policy that yields no result denies.
func (e *RegoEngine) Evaluate(ctx context.Context, input *RuleInput) (*RuleResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	inputMap := map[string]any{
		"tool":       input.Tool,
		"agent":      input.Agent,
		"parameters": input.Parameters,
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("rego evaluation failed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &RuleResult{Allow: false, Rule: "_rego_default", Message: "policy returned no result"}, nil
	}

	resultMap, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return &RuleResult{Allow: false, Rule: "_rego_default", Message: "unexpected policy result type"}, nil
	}
	return parseRegoResult(resultMap), nil
}

// Reload re-reads and recompiles the policy file.
func (e *RegoEngine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading rego policy file: %w", err)
	}
	return e.loadSource(string(data))
}

func (e *RegoEngine) loadSource(source string) error {
	if _, err := ast.ParseModuleWithOpts("policy.rego", source, ast.ParserOptions{RegoVersion: ast.RegoV1}); err != nil {
		return fmt.Errorf("parsing rego policy: %w", err)
	}

	r := rego.New(
		rego.Query("data.toolgate"),
		rego.Module("policy.rego", source),
		rego.Store(inmem.New()),
	)

	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing rego query: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = query
	return nil
}

func parseRegoResult(m map[string]any) *RuleResult {
	result := &RuleResult{}
	if v, ok := m["allow"].(bool); ok {
		result.Allow = v
	}
	if r, ok := m["rule_name"].(string); ok {
		result.Rule = r
	}
	if msg, ok := m["message"].(string); ok {
		result.Message = msg
	}
	return result
}
