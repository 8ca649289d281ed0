package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/storage"
)

// --- mocks ---

type mockParser struct {
	proposal storage.Proposal
	err      error

	mu    sync.Mutex
	calls []string
}

func (m *mockParser) Parse(_ context.Context, rawEmailID string) (storage.Proposal, error) {
	m.mu.Lock()
	m.calls = append(m.calls, rawEmailID)
	m.mu.Unlock()
	return m.proposal, m.err
}

type mockRecommender struct {
	response json.RawMessage
	err      error
}

func (m *mockRecommender) Recommend(_ context.Context, _ string) (json.RawMessage, error) {
	return m.response, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Store:       store,
		Parser:      &mockParser{},
		Recommender: &mockRecommender{response: json.RawMessage(`{"recommendedVendor":"Acme"}`)},
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "no content in result")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.Truef(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func seedRFP(t *testing.T, store *storage.Store, title, status string) storage.RFP {
	t.Helper()
	p, err := store.CreateRFP(storage.RFP{
		Title:  title,
		Items:  []storage.Item{{Name: "Laptop", Quantity: "20", Specifications: "16GB RAM"}},
		Status: status,
	})
	require.NoError(t, err)
	return p
}

func seedVendor(t *testing.T, store *storage.Store, name, email string) storage.Vendor {
	t.Helper()
	v, err := store.CreateVendor(storage.Vendor{Name: name, Email: email})
	require.NoError(t, err)
	return v
}

// callTool runs h and fails the test on a protocol-level error.
func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	require.NoError(t, err)
	return result
}

// --- tests ---

func TestMCPTool_ListRFPs(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedRFP(t, store, "Laptops", storage.RFPStatusDraft)
	seedRFP(t, store, "Chairs", storage.RFPStatusSent)

	result := callTool(t, mcpListRFPs(deps), "list_rfps", nil)
	require.False(t, result.IsError, toolText(t, result))

	var rfps []storage.RFP
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rfps))
	assert.Len(t, rfps, 2)
}

func TestMCPTool_ListRFPs_StatusFilter(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedRFP(t, store, "Laptops", storage.RFPStatusDraft)
	seedRFP(t, store, "Chairs", storage.RFPStatusSent)

	result := callTool(t, mcpListRFPs(deps), "list_rfps", map[string]interface{}{"status": "sent"})

	var rfps []storage.RFP
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &rfps))
	require.Len(t, rfps, 1)
	assert.Equal(t, "Chairs", rfps[0].Title)
}

func TestMCPTool_ListRFPs_BadStatus(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpListRFPs(deps), "list_rfps", map[string]interface{}{"status": "archived"})
	assert.True(t, result.IsError, "expected error result for unknown status")
}

func TestMCPTool_ListRFPs_Empty(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpListRFPs(deps), "list_rfps", nil)
	assert.Equal(t, "[]", toolText(t, result))
}

func TestMCPTool_GetRFP(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	p := seedRFP(t, store, "Laptops", storage.RFPStatusSent)
	v := seedVendor(t, store, "Acme", "sales@acme.test")
	_, err := store.UpsertRFPVendor(p.ID, v.ID, p.CreatedAt)
	require.NoError(t, err)

	result := callTool(t, mcpGetRFP(deps), "get_rfp", map[string]interface{}{"id": p.ID})
	require.False(t, result.IsError, toolText(t, result))

	var detail struct {
		Title     string              `json:"title"`
		Vendors   []storage.RFPVendor `json:"vendors"`
		Proposals []storage.Proposal  `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &detail))
	assert.Equal(t, "Laptops", detail.Title)
	require.Len(t, detail.Vendors, 1)
	require.NotNil(t, detail.Vendors[0].Vendor)
	assert.Equal(t, "Acme", detail.Vendors[0].Vendor.Name)
	assert.NotNil(t, detail.Proposals, "proposals must be an empty array, not null")
}

func TestMCPTool_GetRFP_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpGetRFP(deps), "get_rfp", map[string]interface{}{"id": "missing"})
	require.True(t, result.IsError)
	assert.Equal(t, "RFP not found", toolText(t, result))
}

func TestMCPTool_GetRFP_MissingID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpGetRFP(deps), "get_rfp", nil)
	assert.True(t, result.IsError)
}

func TestMCPTool_ListVendors(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedVendor(t, store, "Acme", "sales@acme.test")

	result := callTool(t, mcpListVendors(deps), "list_vendors", nil)

	var vendors []storage.Vendor
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &vendors))
	require.Len(t, vendors, 1)
	assert.Equal(t, "sales@acme.test", vendors[0].Email)
}

func TestMCPTool_ParseProposal(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	parser := &mockParser{proposal: storage.Proposal{ID: "p1", TotalCost: "$1,000"}}
	deps.Parser = parser

	result := callTool(t, mcpParseProposal(deps), "parse_proposal", map[string]interface{}{"raw_email_id": "e1"})
	require.False(t, result.IsError, toolText(t, result))

	var p storage.Proposal
	require.NoError(t, json.Unmarshal([]byte(toolText(t, result)), &p))
	assert.Equal(t, "$1,000", p.TotalCost)
	assert.Equal(t, []string{"e1"}, parser.calls)
}

func TestMCPTool_ParseProposal_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not found", proposal.ErrNotFound, "Raw email or RFP not found"},
		{"bad model output", proposal.ErrParse, "Failed to parse proposal. Please try again."},
		{"upstream", errors.New("boom"), "parse failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := newTestMCPDeps(t)
			deps.Parser = &mockParser{err: tt.err}

			result := callTool(t, mcpParseProposal(deps), "parse_proposal", map[string]interface{}{"raw_email_id": "e1"})
			require.True(t, result.IsError)
			assert.Equal(t, tt.want, toolText(t, result))
		})
	}
}

func TestMCPTool_ParseProposal_NoParser(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Parser = nil

	result := callTool(t, mcpParseProposal(deps), "parse_proposal", map[string]interface{}{"raw_email_id": "e1"})
	assert.True(t, result.IsError, "expected error when parser is nil")
}

func TestMCPTool_RecommendVendor(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result := callTool(t, mcpRecommendVendor(deps), "recommend_vendor", map[string]interface{}{"rfp_id": "r1"})
	require.False(t, result.IsError, toolText(t, result))
	assert.Equal(t, `{"recommendedVendor":"Acme"}`, toolText(t, result))
}

func TestMCPTool_RecommendVendor_NoProposals(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Recommender = &mockRecommender{err: proposal.ErrNoProposals}

	result := callTool(t, mcpRecommendVendor(deps), "recommend_vendor", map[string]interface{}{"rfp_id": "r1"})
	require.True(t, result.IsError)
	assert.Equal(t, "No proposals found for this RFP", toolText(t, result))
}

func TestMCPResource_RFPs(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedRFP(t, store, "Laptops", storage.RFPStatusDraft)

	contents, err := mcpResourceRFPs(deps)(context.Background(), makeReadResourceRequest("rfpd://rfps"))
	require.NoError(t, err)
	require.Len(t, contents, 1)

	tc, ok := contents[0].(mcp.TextResourceContents)
	require.Truef(t, ok, "expected TextResourceContents, got %T", contents[0])
	assert.Equal(t, "rfpd://rfps", tc.URI)

	var rfps []storage.RFP
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &rfps))
	assert.Len(t, rfps, 1)
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedVendor(t, store, "Acme", "sales@acme.test")

	listHandler := mcpListVendors(deps)
	parseHandler := mcpParseProposal(deps)

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := listHandler(context.Background(), makeCallToolRequest("list_vendors", nil)); err != nil {
				errs <- err
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := makeCallToolRequest("parse_proposal", map[string]interface{}{"raw_email_id": "e1"})
			if _, err := parseHandler(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err, "concurrent call failed")
	}
	assert.Len(t, deps.Parser.(*mockParser).calls, 5)
}
