package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"syscall"

	"github.com/kalambet/rfpd/internal/api"
	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/storage"
)

// serverParser parses proposals inside a running rfpd serve, so the server's
// view cache drops the RFP pages the new proposal changes. With no server
// listening it parses in this process.
type serverParser struct {
	client *apiClient
	local  api.ProposalParser
}

func (p *serverParser) Parse(ctx context.Context, rawEmailID string) (storage.Proposal, error) {
	resp, err := p.client.post(ctx, "/api/proposals/parse", map[string]string{"rawEmailId": rawEmailID})
	if errors.Is(err, syscall.ECONNREFUSED) {
		slog.Debug("rfpd serve not running, parsing locally", "raw_email_id", rawEmailID)
		return p.local.Parse(ctx, rawEmailID)
	}
	if err != nil {
		return storage.Proposal{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		var out storage.Proposal
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return storage.Proposal{}, fmt.Errorf("decoding proposal: %w", err)
		}
		return out, nil
	}

	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	json.Unmarshal(body, &envelope)

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return storage.Proposal{}, proposal.ErrInvalidInput
	case resp.StatusCode == http.StatusNotFound:
		return storage.Proposal{}, proposal.ErrNotFound
	case envelope.Error.Type == "parse_error":
		return storage.Proposal{}, fmt.Errorf("%w: %s", proposal.ErrParse, envelope.Error.Message)
	case envelope.Error.Message != "":
		return storage.Proposal{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, envelope.Error.Message)
	}
	return storage.Proposal{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
}
