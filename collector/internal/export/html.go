package export

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/hazyhaar/schemawatch/collector/internal/store"
	"github.com/hazyhaar/schemawatch/schema"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id").OnElements("h1", "h2", "h3")
	return p
}

// HTML renders the Markdown document to a sanitized HTML fragment.
func HTML(specs []*store.Spec) ([]byte, error) {
	md, err := Markdown(specs)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := markdown.Convert(md, &buf); err != nil {
		return nil, fmt.Errorf("export: render html: %w", err)
	}
	return policy.SanitizeBytes(buf.Bytes()), nil
}

// JSONSchema returns the JSON Schema document of spec's response.
func JSONSchema(spec *store.Spec) map[string]any {
	doc := schema.JSONSchema(nodeOrUndefined(spec.ResponseSchema))
	doc["title"] = spec.OperationName
	if spec.ContentFingerprint != "" {
		doc["$comment"] = "fingerprint " + spec.ContentFingerprint
	}
	return doc
}
