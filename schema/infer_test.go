package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func nestedArrays(depth int, leaf any) any {
	v := leaf
	for i := 0; i < depth; i++ {
		v = []any{v}
	}
	return v
}

func TestInfer_MaxDepthOnDeepArray(t *testing.T) {
	n := Infer(nestedArrays(20, "leaf"))

	levels := 0
	for {
		a, ok := n.(*ArrayNode)
		if !ok {
			break
		}
		if a.Length != 1 {
			t.Fatalf("level %d: length = %d, want 1", levels, a.Length)
		}
		n = a.Items
		levels++
	}
	if levels != MaxDepth+1 {
		t.Fatalf("array levels = %d, want %d", levels, MaxDepth+1)
	}
	if _, ok := n.(MaxDepthNode); !ok {
		t.Fatalf("node below depth %d = %T, want MaxDepthNode", MaxDepth, n)
	}

	// Deeper content does not change the result.
	if diff := cmp.Diff(Infer(nestedArrays(20, "leaf")), Infer(nestedArrays(40, 42))); diff != "" {
		t.Fatalf("deep inputs differ (-20 +40):\n%s", diff)
	}
}

func wideObject(n int) map[string]any {
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		m[fmt.Sprintf("k%02d", i)] = i
	}
	return m
}

func TestInfer_TooManyKeys(t *testing.T) {
	got := Infer(wideObject(61))
	want := &ObjectNode{Count: 61}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("61 keys (-want +got):\n%s", diff)
	}
	if !got.(*ObjectNode).TooManyKeys() {
		t.Fatal("expected TooManyKeys")
	}
}

func TestInfer_ExactlyMaxKeys(t *testing.T) {
	obj := Infer(wideObject(MaxKeys)).(*ObjectNode)
	if obj.TooManyKeys() {
		t.Fatal("50 keys summarised, want full map")
	}
	if obj.Count != MaxKeys || len(obj.Properties) != MaxKeys {
		t.Fatalf("count = %d, properties = %d", obj.Count, len(obj.Properties))
	}
	if diff := cmp.Diff(&ScalarNode{Kind: "number", Sample: 7}, obj.Properties["k07"]); diff != "" {
		t.Fatalf("k07 (-want +got):\n%s", diff)
	}
}

func TestInfer_FirstElementOnly(t *testing.T) {
	list := []any{
		map[string]any{"a": 1},
		map[string]any{"a": 2},
		map[string]any{"a": 3, "b": "ignored"},
	}
	want := &ArrayNode{Length: 3, Items: Infer(map[string]any{"a": 1})}
	if diff := cmp.Diff(want, Infer(list)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestInfer_StringSamples(t *testing.T) {
	long := strings.Repeat("x", 120)
	exact := strings.Repeat("y", 50)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"truncated", long, strings.Repeat("x", 50) + Ellipsis},
		{"exact", exact, exact},
		{"empty", "", ""},
		{"runes", strings.Repeat("é", 60), strings.Repeat("é", 50) + Ellipsis},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Infer(tt.in).(*ScalarNode)
			if got.Kind != "string" || got.Sample != tt.want {
				t.Fatalf("got %s %q, want string %q", got.Kind, got.Sample, tt.want)
			}
		})
	}
}

func TestInfer_Leaves(t *testing.T) {
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		in   any
		want Node
	}{
		{"null", nil, NullNode{}},
		{"undefined", Undefined, UndefinedNode{}},
		{"bool", true, &ScalarNode{Kind: "boolean", Sample: true}},
		{"json number", json.Number("1.5"), &ScalarNode{Kind: "number", Sample: json.Number("1.5")}},
		{"float", 2.0, &ScalarNode{Kind: "number", Sample: 2.0}},
		{"empty array", []any{}, &ArrayNode{}},
		{"empty object", map[string]any{}, &ObjectNode{Properties: map[string]Node{}}},
		{"foreign type", stamp, &ScalarNode{Kind: "time.Time"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Infer(tt.in)); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestInfer_GraphQLResponse(t *testing.T) {
	var resp any
	dec := json.NewDecoder(strings.NewReader(`{"data":{"foo":{"bar":"baz"}}}`))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		t.Fatal(err)
	}

	want := &ObjectNode{Count: 1, Properties: map[string]Node{
		"data": &ObjectNode{Count: 1, Properties: map[string]Node{
			"foo": &ObjectNode{Count: 1, Properties: map[string]Node{
				"bar": &ScalarNode{Kind: "string", Sample: "baz"},
			}},
		}},
	}}
	if diff := cmp.Diff(want, Infer(resp)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
