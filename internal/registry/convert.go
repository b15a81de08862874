package registry

import "encoding/json"

// toMap flattens any JSON-marshalable value (typically a store/graph
// struct) into the map[string]any shape the budget enforcer and
// envelope.Result operate on.
func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{"value": v}
	}
	return m
}

func toMapList(items any) []any {
	b, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	var out []any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
