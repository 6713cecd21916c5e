package schema

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Draft is the JSON Schema dialect emitted by JSONSchema.
const Draft = "https://json-schema.org/draft/2020-12/schema"

const validateLocation = "https://schemawatch.invalid/response.schema.json"

// JSONSchema converts n into a JSON Schema document.
//
// The conversion is lenient: a Node is inferred from one sample, so every
// typed position also accepts null, fields are never required, and positions
// whose type is unknown (null samples, truncated depth, undefined) accept
// anything.
func JSONSchema(n Node) map[string]any {
	doc := jsonSchema(n)
	doc["$schema"] = Draft
	return doc
}

func jsonSchema(n Node) map[string]any {
	switch x := n.(type) {
	case *ScalarNode:
		switch x.Kind {
		case "string", "number", "boolean":
			return map[string]any{"type": []any{x.Kind, "null"}}
		}
	case *ArrayNode:
		m := map[string]any{"type": []any{"array", "null"}}
		if x.Items != nil {
			m["items"] = jsonSchema(x.Items)
		}
		return m
	case *ObjectNode:
		m := map[string]any{"type": []any{"object", "null"}}
		if x.Properties != nil {
			props := make(map[string]any, len(x.Properties))
			for k, child := range x.Properties {
				props[k] = jsonSchema(child)
			}
			m["properties"] = props
		}
		return m
	}
	return map[string]any{}
}

// Validate reports whether v conforms to the JSON Schema derived from n.
// The returned error is a *jsonschema.ValidationError describing every
// mismatch when v does not conform.
func Validate(n Node, v any) error {
	doc, err := reparse(JSONSchema(n))
	if err != nil {
		return fmt.Errorf("schema: encode json schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(validateLocation, doc); err != nil {
		return fmt.Errorf("schema: add resource: %w", err)
	}
	sch, err := c.Compile(validateLocation)
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}
	inst, err := reparse(v)
	if err != nil {
		return fmt.Errorf("schema: encode instance: %w", err)
	}
	return sch.Validate(inst)
}

// reparse round-trips v through JSON so the validator sees the number
// representation it expects.
func reparse(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}
