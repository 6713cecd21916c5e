package collector

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "schemawatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, c *Collector) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	c.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func mustCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	text, isErr := callTool(t, session, name, args)
	if isErr {
		t.Fatalf("CallTool(%s) tool error: %s", name, text)
	}
	return text
}

func TestMCP_Tools(t *testing.T) {
	srv := upstream(t, map[string]string{"GetFoo": fooResponse})
	c := readyCollector(t, testConfig(t))
	post(t, clientFor(c, srv), srv.URL+"/graphql", opBody("GetFoo", "abc"))
	eventually(t, "GetFoo stored", stored(t, c, "GetFoo"))

	session := mcpSession(t, c)

	var list struct {
		Operations []struct {
			Name        string `json:"name"`
			Fingerprint string `json:"fingerprint"`
		} `json:"operations"`
	}
	if err := json.Unmarshal([]byte(mustCallTool(t, session, "schemawatch_list", map[string]any{})), &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Operations) != 1 || list.Operations[0].Name != "GetFoo" || list.Operations[0].Fingerprint != "abc" {
		t.Errorf("list: got %+v", list.Operations)
	}

	var spec OperationSpec
	text := mustCallTool(t, session, "schemawatch_get", map[string]any{"name": "GetFoo"})
	if err := json.Unmarshal([]byte(text), &spec); err != nil {
		t.Fatalf("get: %v\n%s", err, text)
	}
	if spec.OperationName != "GetFoo" || spec.ResponseSchema == nil {
		t.Errorf("get: got %+v", spec)
	}

	doc := mustCallTool(t, session, "schemawatch_export", map[string]any{})
	if !strings.HasPrefix(doc, "# GraphQL operations") {
		t.Errorf("export: got %q", doc[:min(40, len(doc))])
	}

	var check struct {
		Valid bool `json:"valid"`
	}
	text = mustCallTool(t, session, "schemawatch_check", map[string]any{
		"name":     "GetFoo",
		"response": map[string]any{"data": map[string]any{"foo": map[string]any{"bar": 1}}},
	})
	json.Unmarshal([]byte(text), &check)
	if check.Valid {
		t.Error("check: mismatched response reported valid")
	}

	var st Status
	json.Unmarshal([]byte(mustCallTool(t, session, "schemawatch_status", map[string]any{})), &st)
	if st.Count != 1 || st.LastExport == "" {
		t.Errorf("status: got %+v", st)
	}

	mustCallTool(t, session, "schemawatch_clear", map[string]any{})
	json.Unmarshal([]byte(mustCallTool(t, session, "schemawatch_status", map[string]any{})), &st)
	if st.Count != 0 {
		t.Errorf("status after clear: got %+v", st)
	}
}

func TestMCP_Errors(t *testing.T) {
	c := readyCollector(t, testConfig(t))
	session := mcpSession(t, c)

	if _, isErr := callTool(t, session, "schemawatch_get", map[string]any{"name": "Missing"}); !isErr {
		t.Error("get of a missing operation should be a tool error")
	}
	// Missing arguments may be refused by the protocol layer or by the tool.
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "schemawatch_get",
		Arguments: map[string]any{},
	})
	if err == nil && !result.IsError {
		t.Error("get without a name should fail")
	}
}
