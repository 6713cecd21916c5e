// Package export renders snapshots of the operation corpus. Every function
// here is pure: it works on the slice it is given and never reads the store.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hazyhaar/schemawatch/collector/internal/store"
	"github.com/hazyhaar/schemawatch/schema"
)

// Title heads the Markdown document.
const Title = "GraphQL operations"

const contentsHeading = "Contents"

// Sorted returns a copy of specs ordered by operation name.
func Sorted(specs []*store.Spec) []*store.Spec {
	out := make([]*store.Spec, 0, len(specs))
	for _, s := range specs {
		if s != nil {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OperationName < out[j].OperationName })
	return out
}

// ListView returns the operation names in document order.
func ListView(specs []*store.Spec) []string {
	sorted := Sorted(specs)
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.OperationName
	}
	return names
}

// Markdown renders the corpus document: a title, a table of contents, then
// one section per operation with its fingerprint, endpoint, variable shape
// and response schema. The output depends only on specs, so two calls on an
// unchanged corpus are byte-identical.
func Markdown(specs []*store.Spec) ([]byte, error) {
	sorted := Sorted(specs)
	anchors := headingIDs(sorted)

	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", Title)
	switch len(sorted) {
	case 0:
		b.WriteString("No operations captured yet.\n")
		return b.Bytes(), nil
	case 1:
		b.WriteString("1 operation.\n\n")
	default:
		fmt.Fprintf(&b, "%d operations.\n\n", len(sorted))
	}

	fmt.Fprintf(&b, "## %s\n\n", contentsHeading)
	for i, s := range sorted {
		fmt.Fprintf(&b, "- [%s](#%s)\n", escape(s.OperationName), anchors[i])
	}

	for _, s := range sorted {
		fmt.Fprintf(&b, "\n## %s\n\n", escape(s.OperationName))
		fmt.Fprintf(&b, "- Fingerprint: %s\n", codeSpan(s.ContentFingerprint))
		if s.Endpoint != "" {
			fmt.Fprintf(&b, "- Endpoint: %s\n", codeSpan(s.Endpoint))
		}

		vars, err := pretty(shapeOrUndefined(s.VariableShape))
		if err != nil {
			return nil, fmt.Errorf("export: %s variables: %w", s.OperationName, err)
		}
		resp, err := pretty(nodeOrUndefined(s.ResponseSchema))
		if err != nil {
			return nil, fmt.Errorf("export: %s response: %w", s.OperationName, err)
		}
		fmt.Fprintf(&b, "\nVariables:\n\n```json\n%s\n```\n", vars)
		fmt.Fprintf(&b, "\nResponse:\n\n```json\n%s\n```\n", resp)
	}
	return b.Bytes(), nil
}

// Filename is the suggested download name of the Markdown document.
func Filename() string { return "graphql-operations.md" }

func pretty(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func shapeOrUndefined(s schema.Shape) schema.Shape {
	if s == nil {
		return schema.ShapeUndefined{}
	}
	return s
}

func nodeOrUndefined(n schema.Node) schema.Node {
	if n == nil {
		return schema.UndefinedNode{}
	}
	return n
}

var escaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", `*`, `\*`, `_`, `\_`,
	`[`, `\[`, `]`, `\]`, `<`, `\<`, `>`, `\>`, `#`, `\#`,
)

func escape(s string) string { return escaper.Replace(s) }

// codeSpan wraps s in an inline code span whose fence is one backtick longer
// than the longest backtick run in s. Line breaks become spaces.
func codeSpan(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	fence := strings.Repeat("`", longest+1)
	// One leading and one trailing space are stripped when both are present.
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") ||
		(strings.HasPrefix(s, " ") && strings.HasSuffix(s, " ") && strings.Trim(s, " ") != "") {
		s = " " + s + " "
	}
	return fence + s + fence
}

// headingIDs mirrors goldmark's auto heading IDs for the headings Markdown
// emits, in document order, so table of contents links resolve in the HTML
// rendering.
func headingIDs(sorted []*store.Spec) []string {
	seen := make(map[string]bool)
	slug(Title, seen)
	slug(contentsHeading, seen)
	ids := make([]string, len(sorted))
	for i, s := range sorted {
		ids[i] = slug(s.OperationName, seen)
	}
	return ids
}

func slug(text string, seen map[string]bool) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + 'a' - 'A')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == ' ' || c == '\t' || c == '-' || c == '_':
			b.WriteByte('-')
		}
	}
	id := b.String()
	if id == "" {
		id = "heading"
	}
	if !seen[id] {
		seen[id] = true
		return id
	}
	for n := 1; ; n++ {
		next := fmt.Sprintf("%s-%d", id, n)
		if !seen[next] {
			seen[next] = true
			return next
		}
	}
}
