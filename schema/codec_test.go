package schema

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNodeEncoding(t *testing.T) {
	n := Infer(map[string]any{
		"data": map[string]any{
			"items": []any{map[string]any{"id": json.Number("7"), "ok": true}},
			"none":  []any{},
			"gone":  nil,
		},
	})
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"object","count":1,"properties":{"data":{"type":"object","count":3,"properties":{` +
		`"gone":{"type":"null"},` +
		`"items":{"type":"array","length":1,"items":[{"type":"object","count":2,"properties":{` +
		`"id":{"type":"scalar","kind":"number","sample":7},"ok":{"type":"scalar","kind":"boolean","sample":true}}}]},` +
		`"none":{"type":"array","length":0,"items":"empty"}}}}}`
	if string(data) != want {
		t.Fatalf("encoding:\n got %s\nwant %s", data, want)
	}

	back, err := ParseNode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(n, back); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestNodeEncoding_Summaries(t *testing.T) {
	for _, n := range []Node{&ObjectNode{Count: 61}, MaxDepthNode{}, UndefinedNode{}, &ScalarNode{Kind: "time.Time"}} {
		data, err := json.Marshal(n)
		if err != nil {
			t.Fatal(err)
		}
		back, err := ParseNode(data)
		if err != nil {
			t.Fatalf("parse %s: %v", data, err)
		}
		if diff := cmp.Diff(n, back); diff != "" {
			t.Fatalf("%s (-want +got):\n%s", data, diff)
		}
	}
}

func TestShapeEncodingRoundTrip(t *testing.T) {
	s := ShapeOf(map[string]any{
		"ids":   []any{json.Number("1")},
		"empty": []any{},
		"deep":  nestedArrays(9, "x"),
		"wide":  wideObject(51),
		"null":  nil,
	})
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseShape(data)
	if err != nil {
		t.Fatal(err)
	}
	again, err := json.Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Fatalf("round trip:\n got %s\nwant %s", again, data)
	}
}

func TestParseMalformed(t *testing.T) {
	for _, in := range []string{`{"type":"wat"}`, `{"type":"array","items":[]}`, `not json`} {
		if _, err := ParseNode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseNode(%s) err = %v, want ErrMalformed", in, err)
		}
	}
	for _, in := range []string{``, `42`, `["a","b"]`} {
		if _, err := ParseShape([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseShape(%s) err = %v, want ErrMalformed", in, err)
		}
	}
}
