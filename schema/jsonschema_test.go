package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestJSONSchema_Document(t *testing.T) {
	doc := JSONSchema(Infer(decode(t, `{"data":{"n":1,"list":[],"x":null}}`)))
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"$schema":"https://json-schema.org/draft/2020-12/schema","properties":{"data":{"properties":{` +
		`"list":{"type":["array","null"]},"n":{"type":["number","null"]},"x":{}},"type":["object","null"]}},"type":["object","null"]}`
	if string(data) != want {
		t.Fatalf("document:\n got %s\nwant %s", data, want)
	}
}

func TestValidate(t *testing.T) {
	node := Infer(decode(t, `{"data":{"user":{"name":"ada","age":36,"tags":["a"]}}}`))

	tests := []struct {
		name string
		in   string
		ok   bool
	}{
		{"same shape", `{"data":{"user":{"name":"bob","age":1,"tags":[]}}}`, true},
		{"null field", `{"data":{"user":{"name":null,"age":2,"tags":["b"]}}}`, true},
		{"extra field", `{"data":{"user":{"name":"c","extra":true}}}`, true},
		{"type drift", `{"data":{"user":{"name":42}}}`, false},
		{"item drift", `{"data":{"user":{"tags":[1]}}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(node, decode(t, tt.in))
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}
