package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/filter"
	"github.com/kalambet/agora/internal/recommend"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Catalog     CatalogSource
	Recommender Recommender
	Version     string
}

// NewMCPServer creates an MCP server exposing assistant discovery tools and
// the catalog resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"agora",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("agora finds and recommends assistants from a remote catalog."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("filter_assistants",
			mcp.WithDescription("List catalog assistants matching tags, roles, a search term or an id."),
			mcp.WithArray("tags", mcp.Description("Match assistants carrying any of these tags"), mcp.WithStringItems()),
			mcp.WithArray("roles", mcp.Description("Match assistants carrying any of these roles"), mcp.WithStringItems()),
			mcp.WithString("search_term", mcp.Description("Case-insensitive text searched in titles and descriptions")),
			mcp.WithString("assistant_id", mcp.Description("Return only this assistant; other criteria are ignored")),
			mcp.WithBoolean("refresh", mcp.Description("Reload the catalog before filtering")),
		),
		mcpFilterAssistants(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend_assistants",
			mcp.WithDescription("Recommend the assistants best suited to a free-text description of a need."),
			mcp.WithString("description", mcp.Description("What the user needs help with"), mcp.Required()),
			mcp.WithArray("tags", mcp.Description("Restrict candidates to any of these tags"), mcp.WithStringItems()),
			mcp.WithArray("roles", mcp.Description("Restrict candidates to any of these roles"), mcp.WithStringItems()),
			mcp.WithNumber("top_k", mcp.Description("Shortlist size (default 5, max 20)")),
		),
		mcpRecommendAssistants(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_catalog",
			mcp.WithDescription("Reload the assistant catalog from upstream and report its version."),
		),
		mcpRefreshCatalog(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"catalog://assistants",
			"Assistant Catalog",
			mcp.WithResourceDescription("All assistants in the current catalog snapshot as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCatalog(deps),
	)

	return s
}

func mcpFilterAssistants(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		spec := filter.Spec{
			Tags:        req.GetStringSlice("tags", nil),
			Roles:       req.GetStringSlice("roles", nil),
			SearchTerm:  req.GetString("search_term", ""),
			AssistantID: req.GetString("assistant_id", ""),
			Refresh:     req.GetBool("refresh", false),
		}
		if err := spec.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		snap, err := deps.Catalog.Get(ctx, spec.Refresh)
		if err != nil {
			return mcpError(fmt.Sprintf("catalog unavailable: %v", err)), nil
		}
		return mcpJSON(filter.Apply(spec, snap))
	}
}

func mcpRecommendAssistants(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		description, err := req.RequireString("description")
		if err != nil {
			return mcpError("description is required"), nil
		}

		r := recommend.Request{
			Description: description,
			Tags:        req.GetStringSlice("tags", nil),
			Roles:       req.GetStringSlice("roles", nil),
			TopK:        req.GetInt("top_k", 0),
		}

		snap, err := deps.Catalog.Get(ctx, false)
		if err != nil {
			return mcpError(fmt.Sprintf("catalog unavailable: %v", err)), nil
		}
		res, err := deps.Recommender.Recommend(ctx, r, snap)
		if errors.Is(err, catalog.ErrInvalidQuery) {
			return mcpError(err.Error()), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpRefreshCatalog(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap, err := deps.Catalog.Get(ctx, true)
		if err != nil {
			return mcpError(fmt.Sprintf("refresh failed: %v", err)), nil
		}
		return mcpJSON(statusOf(snap, false))
	}
}

func mcpResourceCatalog(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap, err := deps.Catalog.Get(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("loading catalog: %w", err)
		}

		b, err := json.Marshal(snap.Assistants())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
