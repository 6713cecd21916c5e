package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/schemawatch/collector/internal/store"
	"github.com/hazyhaar/schemawatch/schema"
)

func fixture(name, fp, vars, resp string) *store.Spec {
	var v, r any
	dec := json.NewDecoder(strings.NewReader(vars))
	dec.UseNumber()
	dec.Decode(&v)
	dec = json.NewDecoder(strings.NewReader(resp))
	dec.UseNumber()
	dec.Decode(&r)
	return &store.Spec{
		OperationName:      name,
		ContentFingerprint: fp,
		Endpoint:           "/graphql",
		VariableShape:      schema.ShapeOf(v),
		ResponseSchema:     schema.Infer(r),
		CollectedAt:        time.Unix(1_700_000_000, 0).UTC(),
	}
}

func corpus() []*store.Spec {
	return []*store.Spec{
		fixture("ListUsers", "h2", `{"first":10}`, `{"data":{"users":[{"id":"u1"}]}}`),
		fixture("GetFoo", "h1", `{"id":1}`, `{"data":{"foo":{"bar":"baz"}}}`),
	}
}

func TestMarkdown_Document(t *testing.T) {
	got, err := Markdown(corpus())
	if err != nil {
		t.Fatal(err)
	}
	want := "# GraphQL operations\n\n" +
		"2 operations.\n\n" +
		"## Contents\n\n" +
		"- [GetFoo](#getfoo)\n" +
		"- [ListUsers](#listusers)\n" +
		"\n## GetFoo\n\n" +
		"- Fingerprint: `h1`\n" +
		"- Endpoint: `/graphql`\n" +
		"\nVariables:\n\n```json\n{\n  \"id\": \"number\"\n}\n```\n" +
		"\nResponse:\n\n```json\n" +
		`{
  "type": "object",
  "count": 1,
  "properties": {
    "data": {
      "type": "object",
      "count": 1,
      "properties": {
        "foo": {
          "type": "object",
          "count": 1,
          "properties": {
            "bar": {
              "type": "scalar",
              "kind": "string",
              "sample": "baz"
            }
          }
        }
      }
    }
  }
}` + "\n```\n"
	if !strings.HasPrefix(string(got), want) {
		t.Fatalf("document prefix mismatch:\n%s", got)
	}
	if !strings.Contains(string(got), "\n## ListUsers\n") {
		t.Fatal("second operation missing")
	}
}

func TestMarkdown_Deterministic(t *testing.T) {
	specs := corpus()
	a, err := Markdown(specs)
	if err != nil {
		t.Fatal(err)
	}
	reversed := []*store.Spec{specs[1], specs[0]}
	b, err := Markdown(reversed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("document depends on input order")
	}
	if specs[0].OperationName != "ListUsers" {
		t.Fatal("Markdown must not reorder its input")
	}
}

func TestMarkdown_Empty(t *testing.T) {
	got, err := Markdown(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "# GraphQL operations\n\nNo operations captured yet.\n" {
		t.Fatalf("got %q", got)
	}
}

func TestListView(t *testing.T) {
	specs := append(corpus(), fixture("AddItem", "h3", `{}`, `{"data":{}}`))
	if diff := cmp.Diff([]string{"AddItem", "GetFoo", "ListUsers"}, ListView(specs)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestHeadingIDs(t *testing.T) {
	specs := []*store.Spec{{OperationName: "Contents"}, {OperationName: "get_foo"}, {OperationName: "Get-Foo"}}
	got := headingIDs(Sorted(specs))
	// "contents" is taken by the table of contents heading.
	if diff := cmp.Diff([]string{"contents-1", "get-foo", "get-foo-1"}, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestHTML(t *testing.T) {
	out, err := HTML(append(corpus(), fixture("Evil<script>", "x", `{}`, `{"data":{"s":"<img src=x onerror=alert(1)>"}}`)))
	if err != nil {
		t.Fatal(err)
	}
	html := string(out)
	for _, want := range []string{`<h2 id="getfoo">GetFoo</h2>`, `href="#getfoo"`, "<pre>"} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
	if strings.Contains(html, "<script") || strings.Contains(html, "<img") {
		t.Fatalf("unsanitized html:\n%s", html)
	}
}

func TestCodeSpan(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"h1", "`h1`"},
		{"a`b", "``a`b``"},
		{"x``y`", "``` x``y` ```"},
		{"`lead", "`` `lead ``"},
		{" padded ", "`  padded  `"},
		{"two\nlines", "`two lines`"},
	}
	for _, tt := range tests {
		if got := codeSpan(tt.in); got != tt.want {
			t.Errorf("codeSpan(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMarkdown_BacktickInFingerprint(t *testing.T) {
	spec := fixture("GetFoo", "h`1", `{}`, `{"data":{"n":1}}`)
	spec.Endpoint = "/graph`ql"
	md, err := Markdown([]*store.Spec{spec})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"- Fingerprint: ``h`1``\n", "- Endpoint: ``/graph`ql``\n"} {
		if !bytes.Contains(md, []byte(want)) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	out, err := HTML([]*store.Spec{spec})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"<code>h`1</code>", "<code>/graph`ql</code>"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("html missing %q:\n%s", want, out)
		}
	}
}

func TestJSONSchema(t *testing.T) {
	doc := JSONSchema(fixture("GetFoo", "h1", `{}`, `{"data":{"n":1}}`))
	if doc["title"] != "GetFoo" || doc["$schema"] != schema.Draft {
		t.Fatalf("doc = %v", doc)
	}
}
