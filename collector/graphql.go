package collector

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"

	"github.com/hazyhaar/schemawatch/schema"
)

// call is what the interception layer extracts from a GraphQL request.
type call struct {
	Operation   string
	Fingerprint string
	Variables   any
	Endpoint    string
}

// request mirrors the GraphQL-over-HTTP body. Only the fields used for
// identification are decoded.
type request struct {
	OperationName string          `json:"operationName"`
	Variables     json.RawMessage `json:"variables"`
	Query         string          `json:"query"`
	Extensions    struct {
		PersistedQuery struct {
			SHA256Hash string `json:"sha256Hash"`
		} `json:"persistedQuery"`
	} `json:"extensions"`
	DocumentID json.RawMessage `json:"documentId"`
	DocID      json.RawMessage `json:"doc_id"`
	ID         json.RawMessage `json:"id"`
}

// parseBody extracts a call from a JSON request body. Batched (array) bodies
// and bodies without an operation name or fingerprint are not calls.
func parseBody(body []byte, inlineQuery bool) (call, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return call{}, false
	}
	var r request
	if err := json.Unmarshal(body, &r); err != nil {
		return call{}, false
	}
	return r.call(inlineQuery)
}

// parseQuery extracts a call from Apollo-style GET parameters.
func parseQuery(q url.Values, inlineQuery bool) (call, bool) {
	var r request
	r.OperationName = q.Get("operationName")
	r.Query = q.Get("query")
	if v := q.Get("variables"); v != "" {
		r.Variables = json.RawMessage(v)
	}
	if ext := q.Get("extensions"); ext != "" {
		if err := json.Unmarshal([]byte(ext), &r.Extensions); err != nil {
			return call{}, false
		}
	}
	if v := q.Get("documentId"); v != "" {
		r.DocumentID, _ = json.Marshal(v)
	}
	return r.call(inlineQuery)
}

func (r *request) call(inlineQuery bool) (call, bool) {
	if r.OperationName == "" {
		return call{}, false
	}
	fp := r.fingerprint(inlineQuery)
	if fp == "" {
		return call{}, false
	}
	return call{
		Operation:   r.OperationName,
		Fingerprint: fp,
		Variables:   decodeVariables(r.Variables),
	}, true
}

// fingerprint picks the protocol-supplied content identity, in order:
// persisted-query hash, documentId, doc_id, id. With inlineQuery set, the
// SHA-256 of the query text is the last resort.
func (r *request) fingerprint(inlineQuery bool) string {
	if h := r.Extensions.PersistedQuery.SHA256Hash; h != "" {
		return h
	}
	for _, raw := range []json.RawMessage{r.DocumentID, r.DocID, r.ID} {
		if id := scalarID(raw); id != "" {
			return id
		}
	}
	if inlineQuery && r.Query != "" {
		sum := sha256.Sum256([]byte(r.Query))
		return "sha256:" + hex.EncodeToString(sum[:])
	}
	return ""
}

// scalarID accepts string and numeric ids.
func scalarID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func decodeVariables(raw json.RawMessage) any {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.Undefined
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return schema.Undefined
	}
	return v
}
