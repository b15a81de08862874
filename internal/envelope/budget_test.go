package envelope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/branchmind/internal/store"
)

func TestApplyBudgetWithinLimitIsUntouched(t *testing.T) {
	result := map[string]any{"title": "short"}
	out, budget, warnings := ApplyBudget(result, 1000)
	assert.False(t, budget.Truncated)
	assert.Empty(t, warnings)
	assert.Equal(t, result, out)
}

func TestApplyBudgetShortensLongTextBeforeDroppingLists(t *testing.T) {
	result := map[string]any{
		"content": strings.Repeat("x", 2000),
		"refs":    []any{"CARD-001"},
	}
	out, budget, warnings := ApplyBudget(result, 500)
	require.True(t, budget.Truncated)
	m := out.(map[string]any)
	assert.Less(t, len(m["content"].(string)), 2000)
	assert.Equal(t, []any{"CARD-001"}, m["refs"], "refs is not in the pop-order list and must survive untouched")
	var sawTruncated bool
	for _, w := range warnings {
		if w.Code == "BUDGET_TRUNCATED" {
			sawTruncated = true
		}
	}
	assert.True(t, sawTruncated)
}

// TestApplyBudgetPreservesCapsuleNavigationInvariant asserts spec.md
// §4.3 step 3 / §8.1.8: even under an ultra-tight budget, a structural
// list is popped down to (never past) one remaining element so at
// least one navigable ref survives.
func TestApplyBudgetPreservesCapsuleNavigationInvariant(t *testing.T) {
	var cards []any
	for i := 0; i < 50; i++ {
		cards = append(cards, map[string]any{
			"id":   "CARD-001",
			"text": strings.Repeat("lorem ipsum dolor sit amet ", 20),
		})
	}
	result := map[string]any{"cards": cards}
	out, budget, _ := ApplyBudget(result, 300)
	require.True(t, budget.Truncated)
	if m, ok := out.(map[string]any); ok {
		if remaining, ok := m["cards"].([]any); ok {
			assert.GreaterOrEqual(t, len(remaining), 1, "at least one card must remain navigable")
			return
		}
	}
	// Or the cascade escalated all the way to the minimal signal form,
	// which is itself a valid (if maximally degraded) outcome.
	assert.Equal(t, map[string]any{"signal": "minimal"}, out)
	assert.True(t, budget.Minimal)
}

func TestApplyBudgetNonObjectResultGoesMinimal(t *testing.T) {
	result := []any{strings.Repeat("a", 2000)}
	out, budget, warnings := ApplyBudget(result, 10)
	assert.True(t, budget.Minimal)
	assert.Equal(t, map[string]any{"signal": "minimal"}, out)
	require.Len(t, warnings, 1)
	assert.Equal(t, "BUDGET_MINIMAL", warnings[0].Code)
}

func TestEnforceBudgetAttachesBudgetSubObjectOnSuccessOnly(t *testing.T) {
	env := Success("tasks.snapshot", map[string]any{"title": "x"}, nil)
	EnforceBudget(&env, 8000)
	m := env.Result.(map[string]any)
	budget, ok := m["budget"].(Budget)
	require.True(t, ok)
	assert.False(t, budget.Truncated)

	errEnv := Failure("tasks.edit", &store.RevisionMismatchError{Expected: 1, Actual: 2})
	before := errEnv.Result
	EnforceBudget(&errEnv, 10)
	assert.Equal(t, before, errEnv.Result, "budget enforcement must never run on an error envelope")
}
