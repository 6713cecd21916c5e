// Package schema infers bounded structural descriptors from decoded JSON
// values.
//
// Two descriptors are produced from the same kind of input:
//
//   - Node (Infer) documents a response: type tags plus truncated samples,
//     recursion capped at MaxDepth, wide objects summarised by key count.
//   - Shape (ShapeOf) is a value-free skeleton of request variables, used to
//     diff inputs without keeping argument values.
//
// Both are closed sum types: every variant is declared in this package and
// callers match them with a type switch.
//
// Usage:
//
//	var v any
//	dec := json.NewDecoder(r)
//	dec.UseNumber()
//	_ = dec.Decode(&v)
//	node := schema.Infer(v)
//	shape := schema.ShapeOf(v)
package schema

const (
	// MaxDepth is the deepest level Infer descends to. Values below it
	// become MaxDepthNode.
	MaxDepth = 8
	// MaxShapeDepth is the recursion bound of ShapeOf.
	MaxShapeDepth = 5
	// MaxKeys is the widest object described field by field.
	MaxKeys = 50
	// MaxSample is the number of runes kept from a string sample.
	MaxSample = 50
	// Ellipsis marks a truncated string sample.
	Ellipsis = "…"
)

// Undefined is the sentinel for a value that is absent rather than null.
// Decoded JSON never contains it; callers building values by hand use it to
// mark a missing member.
var Undefined undefinedValue

type undefinedValue struct{}

// Node is a bounded structural description of a runtime value.
// Implemented by NullNode, UndefinedNode, *ScalarNode, *ArrayNode, *ObjectNode
// and MaxDepthNode only.
type Node interface {
	node()
}

// NullNode describes a JSON null.
type NullNode struct{}

// UndefinedNode describes an absent value.
type UndefinedNode struct{}

// MaxDepthNode replaces anything nested deeper than MaxDepth.
type MaxDepthNode struct{}

// ScalarNode describes a leaf value. Kind is "string", "number", "boolean",
// or the Go type name of an unrecognised value (which carries no sample).
type ScalarNode struct {
	Kind   string
	Sample any
}

// ArrayNode describes a list by its length and the schema of its first
// element. Items is nil for an empty list.
type ArrayNode struct {
	Length int
	Items  Node
}

// ObjectNode describes a map. Properties is nil when the object has more
// than MaxKeys keys; Count is always the number of keys.
type ObjectNode struct {
	Count      int
	Properties map[string]Node
}

// TooManyKeys reports whether the object was summarised by count only.
func (o *ObjectNode) TooManyKeys() bool { return o.Properties == nil }

func (NullNode) node()      {}
func (UndefinedNode) node() {}
func (MaxDepthNode) node()  {}
func (*ScalarNode) node()   {}
func (*ArrayNode) node()    {}
func (*ObjectNode) node()   {}
