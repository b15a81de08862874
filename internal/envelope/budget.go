package envelope

import (
	"encoding/json"
)

// Budget describes what the output-budget enforcer did to a result, per
// spec.md §4.3. It is attached to a successful envelope's result as the
// "budget" sub-object, excluded from its own payload_len measurement.
type Budget struct {
	MaxChars  int  `json:"max_chars"`
	UsedChars int  `json:"used_chars"`
	Truncated bool `json:"truncated"`
	Minimal   bool `json:"minimal"`
}

// listPopOrder lists the heavy list-shaped result fields the
// cascade pops from the tail of, graph queries popping edges before
// nodes (spec.md §4.3 step 3).
var listPopOrder = []string{"edges", "nodes", "errors", "events", "cards", "branches", "docs", "jobs", "issues"}

// heavySubObjectFields are dropped wholesale before list-popping, per
// spec.md §4.3 step 3.
var heavySubObjectFields = []string{"meta", "contract_data", "description"}

// longTextFields are shortened with an ellipsis before anything else
// is touched.
var longTextFields = []string{"text", "content", "summary", "prompt", "context"}

const maxCascadeIterations = 6

// ApplyBudget runs the deterministic truncation cascade from spec.md
// §4.3 against result (already success, already JSON-shaped as
// map[string]any or a slice/scalar). It returns the possibly-mutated
// result, the Budget record to attach, and any budget warnings to
// append to the envelope.
func ApplyBudget(result any, maxChars int) (any, Budget, []Warning) {
	if maxChars <= 0 {
		maxChars = 8000
	}

	used := measure(result)
	if used <= maxChars {
		return result, Budget{MaxChars: maxChars, UsedChars: used, Truncated: false}, nil
	}

	m, isMap := result.(map[string]any)
	if !isMap {
		// Non-object results can only go to minimal signal form.
		return map[string]any{"signal": "minimal"}, Budget{MaxChars: maxChars, UsedChars: measure(result), Truncated: true, Minimal: true},
			[]Warning{{Code: "BUDGET_MINIMAL", Message: "result replaced with minimal signal form to fit max_chars"}}
	}

	var warnings []Warning
	truncatedAny := false

	for i := 0; i < maxCascadeIterations; i++ {
		used = measure(m)
		if used <= maxChars {
			break
		}

		progressed := false

		// Step: shorten long text fields.
		for _, f := range longTextFields {
			if shortenField(m, f, 400) {
				progressed = true
				truncatedAny = true
			}
		}
		if progressed {
			warnings = appendWarningOnce(warnings, Warning{Code: "BUDGET_TRUNCATED", Message: "long text fields shortened to fit max_chars"})
			continue
		}

		// Step: drop heavy sub-objects.
		for _, f := range heavySubObjectFields {
			if _, ok := m[f]; ok {
				delete(m, f)
				progressed = true
				truncatedAny = true
			}
		}
		if progressed {
			warnings = appendWarningOnce(warnings, Warning{Code: "BUDGET_CLAMPED", Message: "heavy sub-objects dropped to fit max_chars"})
			continue
		}

		// Step: pop structural list tails, preserving at least one
		// navigable reference (the capsule navigation invariant).
		for _, f := range listPopOrder {
			if popListTail(m, f) {
				progressed = true
				truncatedAny = true
				break
			}
		}
		if progressed {
			warnings = appendWarningOnce(warnings, Warning{Code: "BUDGET_TRUNCATED", Message: "list fields trimmed to fit max_chars"})
			continue
		}

		// Nothing left to trim incrementally: go minimal.
		return map[string]any{"signal": "minimal"}, Budget{MaxChars: maxChars, UsedChars: measure(result), Truncated: true, Minimal: true},
			appendWarningOnce(warnings, Warning{Code: "BUDGET_MINIMAL", Message: "result replaced with minimal signal form to fit max_chars"})
	}

	used = measure(m)
	return m, Budget{MaxChars: maxChars, UsedChars: used, Truncated: truncatedAny}, warnings
}

func measure(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

func shortenField(m map[string]any, field string, keep int) bool {
	v, ok := m[field]
	if !ok {
		return false
	}
	s, ok := v.(string)
	if !ok || len(s) <= keep {
		return false
	}
	m[field] = s[:keep] + "…"
	return true
}

// popListTail drops the last element of a list field, keeping at least
// one element so a caller can still navigate onward.
func popListTail(m map[string]any, field string) bool {
	v, ok := m[field]
	if !ok {
		return false
	}
	list, ok := v.([]any)
	if !ok || len(list) <= 1 {
		return false
	}
	m[field] = list[:len(list)-1]
	return true
}

func appendWarningOnce(warnings []Warning, w Warning) []Warning {
	for _, existing := range warnings {
		if existing.Code == w.Code {
			return warnings
		}
	}
	return append(warnings, w)
}

// EnforceBudget runs ApplyBudget against env.Result (success envelopes
// only, per spec.md §4.3 step 0) and attaches the resulting budget
// record and warnings.
func EnforceBudget(env *Envelope, maxChars int) {
	if !env.Success {
		return
	}
	result, budget, warnings := ApplyBudget(env.Result, maxChars)
	if m, ok := result.(map[string]any); ok {
		withBudget := make(map[string]any, len(m)+1)
		for k, v := range m {
			withBudget[k] = v
		}
		withBudget["budget"] = budget
		env.Result = withBudget
	} else {
		env.Result = map[string]any{"result": result, "budget": budget}
	}
	env.Warnings = append(env.Warnings, warnings...)
}
