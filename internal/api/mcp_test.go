package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/agora/internal/catalog"
	"github.com/kalambet/agora/internal/recommend"
	"github.com/kalambet/agora/internal/similarity"
)

func newTestMCPDeps() (MCPDeps, *fakeCatalog) {
	cat := &fakeCatalog{snap: testSnapshot()}
	return MCPDeps{
		Catalog:     cat,
		Recommender: recommend.NewComposer(similarity.NewRanker(), nil),
	}, cat
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestNewMCPServer_Builds(t *testing.T) {
	deps, _ := newTestMCPDeps()
	assert.NotNil(t, NewMCPServer(deps))
}

func TestMCPTool_FilterAssistants(t *testing.T) {
	deps, cat := newTestMCPDeps()
	handler := mcpFilterAssistants(deps)

	result, err := handler(context.Background(), makeCallToolRequest("filter_assistants", map[string]any{
		"tags":    []any{"developer"},
		"refresh": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var as []catalog.Assistant
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &as))
	require.Len(t, as, 1)
	assert.Equal(t, "1", as[0].ID)
	assert.Equal(t, 1, cat.forced)
}

func TestMCPTool_FilterAssistants_SearchTerm(t *testing.T) {
	deps, _ := newTestMCPDeps()
	result, err := mcpFilterAssistants(deps)(context.Background(), makeCallToolRequest("filter_assistants", map[string]any{
		"search_term": "JOKES",
	}))
	require.NoError(t, err)

	var as []catalog.Assistant
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &as))
	require.Len(t, as, 1)
	assert.Equal(t, "2", as[0].ID)
}

func TestMCPTool_FilterAssistants_Invalid(t *testing.T) {
	deps, _ := newTestMCPDeps()
	result, err := mcpFilterAssistants(deps)(context.Background(), makeCallToolRequest("filter_assistants", map[string]any{
		"assistant_id": "   ",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPTool_FilterAssistants_CatalogDown(t *testing.T) {
	deps, cat := newTestMCPDeps()
	cat.snap, cat.err = nil, catalog.ErrUpstreamUnavailable
	result, err := mcpFilterAssistants(deps)(context.Background(), makeCallToolRequest("filter_assistants", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "catalog unavailable")
}

func TestMCPTool_RecommendAssistants(t *testing.T) {
	deps, _ := newTestMCPDeps()
	result, err := mcpRecommendAssistants(deps)(context.Background(), makeCallToolRequest("recommend_assistants", map[string]any{
		"description": "I need help writing Python code",
		"top_k":       1,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, toolText(t, result))

	var res recommend.Result
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &res))
	require.Len(t, res.Ranked, 1)
	assert.Equal(t, "1", res.Ranked[0].Assistant.ID)
	assert.Equal(t, recommend.ModeSimilarityOnly, res.Mode)
}

func TestMCPTool_RecommendAssistants_Errors(t *testing.T) {
	deps, _ := newTestMCPDeps()
	handler := mcpRecommendAssistants(deps)

	result, err := handler(context.Background(), makeCallToolRequest("recommend_assistants", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "description is required", toolText(t, result))

	result, err = handler(context.Background(), makeCallToolRequest("recommend_assistants", map[string]any{"description": "  "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(t, result), "invalid query")
}

func TestMCPTool_RefreshCatalog(t *testing.T) {
	deps, cat := newTestMCPDeps()
	result, err := mcpRefreshCatalog(deps)(context.Background(), makeCallToolRequest("refresh_catalog", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var st CatalogStatus
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &st))
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1, cat.forced)

	cat.err = errors.New("boom")
	result, err = mcpRefreshCatalog(deps)(context.Background(), makeCallToolRequest("refresh_catalog", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMCPResource_Catalog(t *testing.T) {
	deps, cat := newTestMCPDeps()
	handler := mcpResourceCatalog(deps)

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: "catalog://assistants"}}
	contents, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, "application/json", tc.MIMEType)
	var as []catalog.Assistant
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &as))
	assert.Len(t, as, 2)

	cat.snap, cat.err = nil, catalog.ErrUpstreamUnavailable
	_, err = handler(context.Background(), req)
	assert.ErrorIs(t, err, catalog.ErrUpstreamUnavailable)
}
