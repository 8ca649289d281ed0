package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store       *storage.Store
	Parser      ProposalParser // optional; if nil, parse_proposal returns an error
	Recommender Recommender    // optional; if nil, recommend_vendor returns an error
}

// NewMCPServer creates an MCP server exposing RFPs, vendors and proposal
// tooling.
func NewMCPServer(deps MCPDeps, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"rfpd",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("rfpd: procurement RFPs, vendors, vendor replies and proposal comparison."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_rfps",
			mcp.WithDescription("List all RFPs, newest first, with their status and number of engaged vendors."),
			mcp.WithString("status", mcp.Description("Only return RFPs with this status (draft, sent, responded, closed)")),
		),
		mcpListRFPs(deps),
	)

	s.AddTool(
		mcp.NewTool("get_rfp",
			mcp.WithDescription("Get one RFP with its engaged vendors and parsed proposals."),
			mcp.WithString("id", mcp.Description("RFP id"), mcp.Required()),
		),
		mcpGetRFP(deps),
	)

	s.AddTool(
		mcp.NewTool("list_vendors",
			mcp.WithDescription("List all known vendors."),
		),
		mcpListVendors(deps),
	)

	s.AddTool(
		mcp.NewTool("parse_proposal",
			mcp.WithDescription("Extract pricing and terms from a stored vendor reply and save them as a proposal."),
			mcp.WithString("raw_email_id", mcp.Description("Id of the stored vendor reply"), mcp.Required()),
		),
		mcpParseProposal(deps),
	)

	s.AddTool(
		mcp.NewTool("recommend_vendor",
			mcp.WithDescription("Compare the parsed proposals of an RFP and recommend a vendor."),
			mcp.WithString("rfp_id", mcp.Description("RFP id"), mcp.Required()),
		),
		mcpRecommendVendor(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"rfpd://rfps",
			"RFPs",
			mcp.WithResourceDescription("All RFPs as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRFPs(deps),
	)

	return s
}

func mcpListRFPs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := req.GetString("status", "")
		if status != "" && !storage.ValidRFPStatus(status) {
			return mcpError(fmt.Sprintf("unknown status %q", status)), nil
		}

		rfps, err := deps.Store.ListRFPs()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list rfps: %v", err)), nil
		}

		filtered := make([]storage.RFP, 0, len(rfps))
		for _, p := range rfps {
			if status == "" || p.Status == status {
				filtered = append(filtered, p)
			}
		}
		return mcpJSON(filtered), nil
	}
}

func mcpGetRFP(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}

		p, err := deps.Store.GetRFP(id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("RFP not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get rfp: %v", err)), nil
		}
		vendors, err := deps.Store.ListRFPVendors(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list rfp vendors: %v", err)), nil
		}
		proposals, err := deps.Store.ListProposals(id)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list proposals: %v", err)), nil
		}
		if vendors == nil {
			vendors = []storage.RFPVendor{}
		}
		if proposals == nil {
			proposals = []storage.Proposal{}
		}
		p.VendorCount = len(vendors)
		return mcpJSON(rfpDetail{RFP: p, Vendors: vendors, Proposals: proposals}), nil
	}
}

func mcpListVendors(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		vendors, err := deps.Store.ListVendors()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list vendors: %v", err)), nil
		}
		if vendors == nil {
			vendors = []storage.Vendor{}
		}
		return mcpJSON(vendors), nil
	}
}

func mcpParseProposal(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Parser == nil {
			return mcpError("proposal parsing not available: no language model configured"), nil
		}
		id, err := req.RequireString("raw_email_id")
		if err != nil {
			return mcpError("raw_email_id is required"), nil
		}

		p, err := deps.Parser.Parse(ctx, id)
		switch {
		case errors.Is(err, proposal.ErrNotFound):
			return mcpError("Raw email or RFP not found"), nil
		case errors.Is(err, proposal.ErrParse):
			return mcpError("Failed to parse proposal. Please try again."), nil
		case err != nil:
			return mcpError(fmt.Sprintf("parse failed: %v", err)), nil
		}
		return mcpJSON(p), nil
	}
}

func mcpRecommendVendor(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Recommender == nil {
			return mcpError("recommendations not available: no language model configured"), nil
		}
		id, err := req.RequireString("rfp_id")
		if err != nil {
			return mcpError("rfp_id is required"), nil
		}

		rec, err := deps.Recommender.Recommend(ctx, id)
		switch {
		case errors.Is(err, proposal.ErrRFPNotFound):
			return mcpError("RFP not found"), nil
		case errors.Is(err, proposal.ErrNoProposals):
			return mcpError("No proposals found for this RFP"), nil
		case errors.Is(err, proposal.ErrParse):
			return mcpError("Failed to generate recommendation. Please try again."), nil
		case err != nil:
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}
		return mcpText(string(rec)), nil
	}
}

func mcpResourceRFPs(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		rfps, err := deps.Store.ListRFPs()
		if err != nil {
			return nil, fmt.Errorf("failed to list rfps: %w", err)
		}
		if rfps == nil {
			rfps = []storage.RFP{}
		}

		b, err := json.Marshal(rfps)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal rfps: %w", err)
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

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
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
