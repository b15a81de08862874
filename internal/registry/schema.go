package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/antigravity-dev/branchmind/internal/store"
)

// validateAgainstSchema compiles schemaJSON and checks args against it,
// grounded on goadesign-goa-ai's registry.validatePayloadJSONAgainstSchema:
// unmarshal both documents, compile an in-memory resource, validate.
// Commands whose shape is richer than a required-field presence check
// (graph.node.upsert's array-typed tags and object-typed meta,
// graph.edge.upsert's length-bounded from/to/rel strings) set SchemaSource = SchemaCustom and supply schemaJSON so
// Dispatch runs this before the handler, turning a schema violation
// into INVALID_INPUT instead of a handler-level assertion.
func validateAgainstSchema(cmd, schemaJSON string, args map[string]any) error {
	var schemaDoc any
	if err := json.Unmarshal([]byte(schemaJSON), &schemaDoc); err != nil {
		return fmt.Errorf("registry: unmarshal schema for %s: %w", cmd, err)
	}

	payloadJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("registry: marshal args for %s: %w", cmd, err)
	}
	var payloadDoc any
	if err := json.Unmarshal(payloadJSON, &payloadDoc); err != nil {
		return fmt.Errorf("registry: unmarshal args for %s: %w", cmd, err)
	}

	c := jsonschema.NewCompiler()
	resourceID := cmd + ".schema.json"
	if err := c.AddResource(resourceID, schemaDoc); err != nil {
		return fmt.Errorf("registry: add schema resource for %s: %w", cmd, err)
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return fmt.Errorf("registry: compile schema for %s: %w", cmd, err)
	}

	if err := schema.Validate(payloadDoc); err != nil {
		return &store.InvalidInputError{Msg: fmt.Sprintf("%s: %v", cmd, err)}
	}
	return nil
}
