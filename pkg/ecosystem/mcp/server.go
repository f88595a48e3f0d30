package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/overlay/pkg/kernel/registry"
)

// NewServer creates an MCP server exposing the overlay authoring tools.
// reg is used for target resolution and domain checks; it may be nil.
func NewServer(version string, reg *registry.Registry) *server.MCPServer {
	s := server.NewMCPServer(
		"overlay",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{Registry: reg}

	s.AddTool(
		mcp.NewTool("overlay/validate",
			mcp.WithDescription("Validate a tutorial or registry YAML file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the YAML file")),
			mcp.WithString("kind", mcp.Description("Document kind: 'tutorial' (default) or 'registry'")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("overlay/resolve",
			mcp.WithString("path", mcp.Required(), mcp.Description("Dotted target path, e.g. toolbar.create.sketch")),
			mcp.WithString("environment", mcp.Description("Active environment (defaults to the first registered one)")),
			mcp.WithDescription("Resolve a target path against the component registry"),
		),
		h.HandleResolve,
	)

	s.AddTool(
		mcp.NewTool("overlay/test",
			mcp.WithDescription("Run scenario tests for a tutorial"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the tutorial YAML file")),
			mcp.WithString("scenario", mcp.Description("Run only the named scenario (optional)")),
		),
		h.HandleTest,
	)

	s.AddTool(
		mcp.NewTool("overlay/schema",
			mcp.WithDescription("Export an overlay JSON Schema"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'tutorial' or 'registry'")),
		),
		h.HandleSchema,
	)

	return s
}
