package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/schemawatch/schema"
)

// Spec is the persisted snapshot of one operation. OperationName is the
// unique key; a newer Spec for the same name replaces the old one whole.
type Spec struct {
	OperationName      string       `json:"operation_name"`
	ContentFingerprint string       `json:"content_fingerprint"`
	Endpoint           string       `json:"endpoint,omitempty"`
	VariableShape      schema.Shape `json:"variable_shape"`
	ResponseSchema     schema.Node  `json:"response_schema"`
	CollectedAt        time.Time    `json:"collected_at"`
}

// UnmarshalJSON decodes the sealed Shape and Node fields through the schema
// parsers.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw struct {
		OperationName      string          `json:"operation_name"`
		ContentFingerprint string          `json:"content_fingerprint"`
		Endpoint           string          `json:"endpoint"`
		VariableShape      json.RawMessage `json:"variable_shape"`
		ResponseSchema     json.RawMessage `json:"response_schema"`
		CollectedAt        time.Time       `json:"collected_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	shape, err := schema.ParseShape(raw.VariableShape)
	if err != nil {
		return fmt.Errorf("store: variable_shape: %w", err)
	}
	node, err := schema.ParseNode(raw.ResponseSchema)
	if err != nil {
		return fmt.Errorf("store: response_schema: %w", err)
	}
	*s = Spec{
		OperationName:      raw.OperationName,
		ContentFingerprint: raw.ContentFingerprint,
		Endpoint:           raw.Endpoint,
		VariableShape:      shape,
		ResponseSchema:     node,
		CollectedAt:        raw.CollectedAt,
	}
	return nil
}

func encodeSpec(s *Spec) (shape, node []byte, err error) {
	var vs schema.Shape = schema.ShapeUndefined{}
	if s.VariableShape != nil {
		vs = s.VariableShape
	}
	var rs schema.Node = schema.UndefinedNode{}
	if s.ResponseSchema != nil {
		rs = s.ResponseSchema
	}
	if shape, err = json.Marshal(vs); err != nil {
		return nil, nil, fmt.Errorf("store: encode variable shape: %w", err)
	}
	if node, err = json.Marshal(rs); err != nil {
		return nil, nil, fmt.Errorf("store: encode response schema: %w", err)
	}
	return shape, node, nil
}

func decodeSpec(name, fp, endpoint, shape, node string, collectedAt int64) (*Spec, error) {
	vs, err := schema.ParseShape([]byte(shape))
	if err != nil {
		return nil, fmt.Errorf("store: decode %s variable shape: %w", name, err)
	}
	rs, err := schema.ParseNode([]byte(node))
	if err != nil {
		return nil, fmt.Errorf("store: decode %s response schema: %w", name, err)
	}
	return &Spec{
		OperationName:      name,
		ContentFingerprint: fp,
		Endpoint:           endpoint,
		VariableShape:      vs,
		ResponseSchema:     rs,
		CollectedAt:        time.UnixMilli(collectedAt).UTC(),
	}, nil
}
