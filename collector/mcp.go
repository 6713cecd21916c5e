package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/schemawatch/kit"
)

// RegisterMCP registers the schemawatch tools on an MCP server.
func (c *Collector) RegisterMCP(srv *mcp.Server) {
	c.registerListTool(srv)
	c.registerGetTool(srv)
	c.registerExportTool(srv)
	c.registerClearTool(srv)
	c.registerStatusTool(srv)
	c.registerCheckTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func noArgs(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

func (c *Collector) tool(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(c.logger, tool.Name))(endpoint), decode)
}

// --- list ---

func (c *Collector) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_list",
		Description: "List captured GraphQL operations with their fingerprints, sorted by name.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		specs, err := c.List(ctx)
		if err != nil {
			return nil, err
		}
		type item struct {
			Name        string `json:"name"`
			Fingerprint string `json:"fingerprint"`
			Endpoint    string `json:"endpoint,omitempty"`
		}
		items := make([]item, 0, len(specs))
		for _, s := range specs {
			items = append(items, item{s.OperationName, s.ContentFingerprint, s.Endpoint})
		}
		return map[string]any{"operations": items}, nil
	}
	c.tool(srv, tool, endpoint, noArgs)
}

// --- get ---

type nameReq struct {
	Name string `json:"name"`
}

func decodeName(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r nameReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	if r.Name == "" {
		return nil, errors.New("name is required")
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (c *Collector) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_get",
		Description: "Get the captured variable shape and response schema of one GraphQL operation.",
		InputSchema: inputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "Operation name"},
		}, []string{"name"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		name := req.(*nameReq).Name
		spec, err := c.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if spec == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return spec, nil
	}
	c.tool(srv, tool, endpoint, decodeName)
}

// --- export ---

func (c *Collector) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_export",
		Description: "Render every captured operation as one Markdown document.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		doc, err := c.Export(ctx)
		if err != nil {
			return nil, err
		}
		return string(doc), nil
	}
	c.tool(srv, tool, endpoint, noArgs)
}

// --- clear ---

func (c *Collector) registerClearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_clear",
		Description: "Delete every captured operation.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := c.Clear(ctx); err != nil {
			return nil, err
		}
		return map[string]any{"cleared": true}, nil
	}
	c.tool(srv, tool, endpoint, noArgs)
}

// --- status ---

func (c *Collector) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_status",
		Description: "Report the number of captured operations and the last export time.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return c.Status(ctx)
	}
	c.tool(srv, tool, endpoint, noArgs)
}

// --- check ---

type checkReq struct {
	Name     string `json:"name"`
	Response any    `json:"response"`
}

func (c *Collector) registerCheckTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "schemawatch_check",
		Description: "Validate a GraphQL response against the captured schema of its operation.",
		InputSchema: inputSchema(map[string]any{
			"name":     map[string]any{"type": "string", "description": "Operation name"},
			"response": map[string]any{"type": "object", "description": "Decoded GraphQL response"},
		}, []string{"name", "response"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*checkReq)
		err := c.Check(ctx, r.Name, r.Response)
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if err != nil {
			return map[string]any{"valid": false, "error": err.Error()}, nil
		}
		return map[string]any{"valid": true}, nil
	}
	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r checkReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		if r.Name == "" {
			return nil, errors.New("name is required")
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}
	c.tool(srv, tool, endpoint, decode)
}
