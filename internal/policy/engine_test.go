package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	t.Run("Allow Completed Run", func(t *testing.T) {
		decision, _, err := engine.Evaluate(ctx, Input{
			EventName:     "run_completed",
			EventProperty: map[string]any{"tokens_consumed": 120, "calls": 3},
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAllow, decision)
	})

	t.Run("Block Negative Tokens", func(t *testing.T) {
		decision, reason, err := engine.Evaluate(ctx, Input{
			EventName:     "run_completed",
			EventProperty: map[string]any{"tokens_consumed": -1, "calls": 3},
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionBlock, decision)
		assert.Equal(t, "negative tokens_consumed", reason)
	})

	t.Run("Block Negative Calls", func(t *testing.T) {
		decision, reason, err := engine.Evaluate(ctx, Input{
			EventName:     "run_iteration_limit_crossed",
			EventProperty: map[string]any{"calls": -4},
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionBlock, decision)
		assert.Equal(t, "negative calls", reason)
	})

	t.Run("Block Empty Tool Key", func(t *testing.T) {
		decision, _, err := engine.Evaluate(ctx, Input{
			EventName:     "tool_used",
			EventProperty: map[string]any{"tool_name": "x"},
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionBlock, decision)
	})

	t.Run("Allow Tool Used", func(t *testing.T) {
		decision, _, err := engine.Evaluate(ctx, Input{
			EventName:     "tool_used",
			EventProperty: map[string]any{"tool_name": "Search"},
			ToolKey:       "search",
		})
		require.NoError(t, err)
		assert.Equal(t, DecisionAllow, decision)
	})
}

func TestLoadEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	content := `package event_policy

default result := "allow"

result := "block" if {
	input.agent_id == 13
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	engine, err := LoadEngine(ctx, path)
	require.NoError(t, err)

	decision, _, err := engine.Evaluate(ctx, Input{AgentID: 13, EventName: "agent_created"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)

	decision, _, err = engine.Evaluate(ctx, Input{AgentID: 12, EventName: "agent_created"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestLoadEngineRejectsBrokenPolicy(t *testing.T) {
	_, err := NewEngine(context.Background(), "package event_policy\nresult := {")
	assert.Error(t, err)

	_, err = LoadEngine(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
