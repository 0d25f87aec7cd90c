// Package policy evaluates event admission rules written in Rego.
package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.event_policy.result"),
		rego.Module("event_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// LoadEngine builds an engine from a policy file, or from DefaultPolicy when
// path is empty.
func LoadEngine(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewEngine(ctx, string(content))
}

// Input is the document a policy sees for one event.
type Input struct {
	OrgID         int64          `json:"org_id"`
	AgentID       int64          `json:"agent_id"`
	EventName     string         `json:"event_name"`
	EventProperty map[string]any `json:"event_property"`
	ToolKey       string         `json:"tool_key,omitempty"`
}

// Evaluate checks an event against the policy.
// Returns: decision (allow, block), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return val, "", nil
	case map[string]any:
		decision, _ := val["decision"].(string)
		reason, _ := val["reason"].(string)
		if decision == "" {
			decision = DecisionAllow
		}
		return decision, reason, nil
	}

	return DecisionAllow, "unexpected return type", nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package event_policy

default result := {"decision": "allow"}

# Token and call counters never go negative.
result := {"decision": "block", "reason": "negative tokens_consumed"} if {
	input.event_property.tokens_consumed < 0
}

result := {"decision": "block", "reason": "negative calls"} if {
	not input.event_property.tokens_consumed < 0
	input.event_property.calls < 0
}

# A tool name made only of spaces normalizes to nothing.
result := {"decision": "block", "reason": "empty tool name"} if {
	input.event_name == "tool_used"
	input.tool_key == ""
	not input.event_property.tokens_consumed < 0
	not input.event_property.calls < 0
}
`
