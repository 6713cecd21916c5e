package schema

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Infer returns the schema of v. It is total and deterministic: any value
// yields a Node, and the same value always yields an equal Node.
//
// Only the first element of a list is inspected, so the cost is bounded by
// MaxDepth and MaxKeys rather than by the size of v.
func Infer(v any) Node {
	return infer(v, 0)
}

func infer(v any, depth int) Node {
	if depth > MaxDepth {
		return MaxDepthNode{}
	}
	switch x := v.(type) {
	case nil:
		return NullNode{}
	case undefinedValue:
		return UndefinedNode{}
	case string:
		return &ScalarNode{Kind: "string", Sample: truncate(x)}
	case bool:
		return &ScalarNode{Kind: "boolean", Sample: x}
	case []any:
		if len(x) == 0 {
			return &ArrayNode{Length: 0}
		}
		return &ArrayNode{Length: len(x), Items: infer(x[0], depth+1)}
	case map[string]any:
		if len(x) > MaxKeys {
			return &ObjectNode{Count: len(x)}
		}
		props := make(map[string]Node, len(x))
		for k, val := range x {
			props[k] = infer(val, depth+1)
		}
		return &ObjectNode{Count: len(x), Properties: props}
	}
	if isNumber(v) {
		return &ScalarNode{Kind: "number", Sample: v}
	}
	return &ScalarNode{Kind: fmt.Sprintf("%T", v)}
}

// truncate keeps the first MaxSample runes of s, marking the cut.
func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxSample {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxSample {
			return s[:i] + Ellipsis
		}
		n++
	}
	return s
}

func isNumber(v any) bool {
	switch v.(type) {
	case json.Number, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}
