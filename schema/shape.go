package schema

import "fmt"

// Shape is a value-free skeleton of a runtime value. Implemented by
// ShapeNull, ShapeUndefined, ShapeScalar, *ShapeArray, *ShapeObject and
// ShapeMaxDepth only.
type Shape interface {
	shape()
}

// ShapeNull is the shape of a JSON null.
type ShapeNull struct{}

// ShapeUndefined is the shape of an absent value.
type ShapeUndefined struct{}

// ShapeMaxDepth replaces anything nested deeper than MaxShapeDepth.
type ShapeMaxDepth struct{}

// ShapeScalar carries the type tag of a leaf.
type ShapeScalar struct {
	Type string
}

// ShapeArray holds one representative element, or nil for an empty list.
type ShapeArray struct {
	Elem Shape
}

// ShapeObject maps field names to shapes. Fields is nil when the object has
// more than MaxKeys keys.
type ShapeObject struct {
	Count  int
	Fields map[string]Shape
}

func (ShapeNull) shape()      {}
func (ShapeUndefined) shape() {}
func (ShapeMaxDepth) shape()  {}
func (ShapeScalar) shape()    {}
func (*ShapeArray) shape()    {}
func (*ShapeObject) shape()   {}

// ShapeOf returns the skeleton of v. No string, number or boolean content is
// retained, so shapes of request variables can be stored and compared
// without keeping argument values.
func ShapeOf(v any) Shape {
	return shapeOf(v, 0)
}

func shapeOf(v any, depth int) Shape {
	if depth > MaxShapeDepth {
		return ShapeMaxDepth{}
	}
	switch x := v.(type) {
	case nil:
		return ShapeNull{}
	case undefinedValue:
		return ShapeUndefined{}
	case string:
		return ShapeScalar{Type: "string"}
	case bool:
		return ShapeScalar{Type: "boolean"}
	case []any:
		if len(x) == 0 {
			return &ShapeArray{}
		}
		return &ShapeArray{Elem: shapeOf(x[0], depth+1)}
	case map[string]any:
		if len(x) > MaxKeys {
			return &ShapeObject{Count: len(x)}
		}
		fields := make(map[string]Shape, len(x))
		for k, val := range x {
			fields[k] = shapeOf(val, depth+1)
		}
		return &ShapeObject{Count: len(x), Fields: fields}
	}
	if isNumber(v) {
		return ShapeScalar{Type: "number"}
	}
	return ShapeScalar{Type: fmt.Sprintf("%T", v)}
}
