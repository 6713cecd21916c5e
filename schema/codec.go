package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON tags of the Node encoding.
const (
	typeNull      = "null"
	typeUndefined = "undefined"
	typeScalar    = "scalar"
	typeArray     = "array"
	typeObject    = "object"
	typeMaxDepth  = "max_depth"

	emptyItems  = "empty"
	tooManyKeys = "too_many_keys"
	emptyShape  = "[]"
)

// ErrMalformed is returned by ParseNode and ParseShape for input that is not
// a valid encoding.
var ErrMalformed = errors.New("schema: malformed encoding")

type tagged struct {
	Type string `json:"type"`
}

func (NullNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagged{Type: typeNull})
}

func (UndefinedNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagged{Type: typeUndefined})
}

func (MaxDepthNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(tagged{Type: typeMaxDepth})
}

func (n *ScalarNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type   string `json:"type"`
		Kind   string `json:"kind"`
		Sample any    `json:"sample,omitempty"`
	}{typeScalar, n.Kind, n.Sample})
}

func (n *ArrayNode) MarshalJSON() ([]byte, error) {
	var items any = emptyItems
	if n.Items != nil {
		items = []Node{n.Items}
	}
	return json.Marshal(struct {
		Type   string `json:"type"`
		Length int    `json:"length"`
		Items  any    `json:"items"`
	}{typeArray, n.Length, items})
}

func (n *ObjectNode) MarshalJSON() ([]byte, error) {
	var props any = tooManyKeys
	if n.Properties != nil {
		props = n.Properties
	}
	return json.Marshal(struct {
		Type       string `json:"type"`
		Count      int    `json:"count"`
		Properties any    `json:"properties"`
	}{typeObject, n.Count, props})
}

// ParseNode decodes the JSON encoding produced by json.Marshal(Node).
func ParseNode(data []byte) (Node, error) {
	var raw struct {
		Type       string          `json:"type"`
		Kind       string          `json:"kind"`
		Sample     any             `json:"sample"`
		Length     int             `json:"length"`
		Count      int             `json:"count"`
		Items      json.RawMessage `json:"items"`
		Properties json.RawMessage `json:"properties"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch raw.Type {
	case typeNull:
		return NullNode{}, nil
	case typeUndefined:
		return UndefinedNode{}, nil
	case typeMaxDepth:
		return MaxDepthNode{}, nil
	case typeScalar:
		return &ScalarNode{Kind: raw.Kind, Sample: raw.Sample}, nil
	case typeArray:
		n := &ArrayNode{Length: raw.Length}
		if isString(raw.Items, emptyItems) {
			return n, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw.Items, &items); err != nil || len(items) != 1 {
			return nil, fmt.Errorf("%w: array items", ErrMalformed)
		}
		item, err := ParseNode(items[0])
		if err != nil {
			return nil, err
		}
		n.Items = item
		return n, nil
	case typeObject:
		n := &ObjectNode{Count: raw.Count}
		if isString(raw.Properties, tooManyKeys) {
			return n, nil
		}
		var props map[string]json.RawMessage
		if err := json.Unmarshal(raw.Properties, &props); err != nil || props == nil {
			return nil, fmt.Errorf("%w: object properties", ErrMalformed)
		}
		n.Properties = make(map[string]Node, len(props))
		for k, p := range props {
			child, err := ParseNode(p)
			if err != nil {
				return nil, err
			}
			n.Properties[k] = child
		}
		return n, nil
	}
	return nil, fmt.Errorf("%w: unknown node type %q", ErrMalformed, raw.Type)
}

func (ShapeNull) MarshalJSON() ([]byte, error)      { return json.Marshal(typeNull) }
func (ShapeUndefined) MarshalJSON() ([]byte, error) { return json.Marshal(typeUndefined) }
func (ShapeMaxDepth) MarshalJSON() ([]byte, error)  { return json.Marshal(typeMaxDepth) }
func (s ShapeScalar) MarshalJSON() ([]byte, error)  { return json.Marshal(s.Type) }

func (s *ShapeArray) MarshalJSON() ([]byte, error) {
	if s.Elem == nil {
		return json.Marshal(emptyShape)
	}
	return json.Marshal([]Shape{s.Elem})
}

func (s *ShapeObject) MarshalJSON() ([]byte, error) {
	if s.Fields == nil {
		return json.Marshal(fmt.Sprintf("object(%d keys)", s.Count))
	}
	return json.Marshal(s.Fields)
}

// ParseShape decodes the JSON encoding produced by json.Marshal(Shape).
func ParseShape(data []byte) (Shape, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty shape", ErrMalformed)
	}
	switch data[0] {
	case '"':
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return shapeFromTag(tag), nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil || len(elems) != 1 {
			return nil, fmt.Errorf("%w: shape array", ErrMalformed)
		}
		elem, err := ParseShape(elems[0])
		if err != nil {
			return nil, err
		}
		return &ShapeArray{Elem: elem}, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		obj := &ShapeObject{Count: len(fields), Fields: make(map[string]Shape, len(fields))}
		for k, f := range fields {
			child, err := ParseShape(f)
			if err != nil {
				return nil, err
			}
			obj.Fields[k] = child
		}
		return obj, nil
	}
	return nil, fmt.Errorf("%w: unexpected shape %q", ErrMalformed, data)
}

func shapeFromTag(tag string) Shape {
	switch tag {
	case typeNull:
		return ShapeNull{}
	case typeUndefined:
		return ShapeUndefined{}
	case typeMaxDepth:
		return ShapeMaxDepth{}
	case emptyShape:
		return &ShapeArray{}
	}
	var n int
	if strings.HasPrefix(tag, "object(") {
		if _, err := fmt.Sscanf(tag, "object(%d keys)", &n); err == nil {
			return &ShapeObject{Count: n}
		}
	}
	return ShapeScalar{Type: tag}
}

func isString(raw json.RawMessage, want string) bool {
	var s string
	return json.Unmarshal(raw, &s) == nil && s == want
}
