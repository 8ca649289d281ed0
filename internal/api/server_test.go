package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/rfpd/internal/dispatch"
	"github.com/kalambet/rfpd/internal/inbound"
	"github.com/kalambet/rfpd/internal/mailer"
	"github.com/kalambet/rfpd/internal/proposal"
	"github.com/kalambet/rfpd/internal/rfp"
	"github.com/kalambet/rfpd/internal/storage"
	"github.com/kalambet/rfpd/internal/textgen"
	"github.com/kalambet/rfpd/internal/viewcache"
)

var webhookSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("api-test-signing-key"))

const rfpJSON = `Here is the RFP:
{"title":"Office Laptops","description":"Laptops for new hires","items":[{"name":"Laptop","quantity":"20","specifications":"16GB RAM"}],"budget":"$50,000","deliveryTimeline":"30 days","paymentTerms":"Net 30","warranty":"1 year"}`

type fakeMailSender struct {
	mu   sync.Mutex
	sent []mailer.Message
	fail map[string]bool
}

func (f *fakeMailSender) Send(_ context.Context, msg mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To[0]] {
		return "", errors.New("provider rejected recipient")
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg_%d", len(f.sent)), nil
}

type testServer struct {
	store   *storage.Store
	views   *viewcache.Cache
	sender  *fakeMailSender
	handler http.Handler
}

type serverOption func(*Deps)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	views := viewcache.New()
	sender := &fakeMailSender{fail: map[string]bool{}}
	gen := textgen.GeneratorFunc(func(context.Context, string) (string, error) {
		return rfpJSON, nil
	})

	deps := Deps{
		Store:       store,
		Creator:     rfp.NewCreator(gen, store, nil, views),
		Dispatcher:  dispatch.NewDispatcher(store, sender, "rfp@buyer.test", "", dispatch.WithViews(views)),
		Parser:      &mockParser{},
		Recommender: &mockRecommender{response: json.RawMessage(`{"recommendedVendor":"Acme"}`)},
		Inbound:     inbound.NewCorrelator(store, inbound.WithViews(views)),
		Verifier:    inbound.NewVerifier(webhookSecret),
		Views:       views,
	}
	for _, o := range opts {
		o(&deps)
	}
	return &testServer{store: store, views: views, sender: sender, handler: NewHandler(deps)}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case []byte:
		rd = bytes.NewReader(b)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Message
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func signedWebhook(t *testing.T, id string, ev inbound.Event) ([]byte, http.Header) {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body, inbound.SignHeaders(webhookSecret, id, time.Now(), body)
}

func replyEvent(from, subject, text string) inbound.Event {
	f, _ := json.Marshal(from)
	return inbound.Event{
		Type: inbound.EventEmailReceived,
		Data: inbound.EventData{From: f, Subject: subject, Text: text},
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/health", nil, nil)

	rec := s.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rfpd_http_requests_total")
}

func TestBearerAuth(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Token = "secret-token" })

	rec := s.do(t, http.MethodGet, "/api/vendors", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="rfpd"`, rec.Header().Get("WWW-Authenticate"))

	rec = s.do(t, http.MethodGet, "/api/vendors", nil, http.Header{"Authorization": {"Bearer wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/vendors", nil, http.Header{"Authorization": {"Bearer secret-token"}})
	assert.Equal(t, http.StatusOK, rec.Code)

	// The webhook is authenticated by its signature instead.
	body, h := signedWebhook(t, "msg_auth", replyEvent("nobody@else.test", "Hi", "hello"))
	rec = s.do(t, http.MethodPost, "/api/webhooks/resend", body, h)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVendors_CRUD(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": " Acme ", "email": "sales@acme.test", "notes": "preferred"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[storage.Vendor](t, rec)
	assert.Equal(t, "Acme", created.Name)
	assert.NotEmpty(t, created.ID)

	rec = s.do(t, http.MethodGet, "/api/vendors/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sales@acme.test", decode[storage.Vendor](t, rec).Email)

	rec = s.do(t, http.MethodPut, "/api/vendors/"+created.ID, map[string]string{"name": "Acme Corp"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[storage.Vendor](t, rec)
	assert.Equal(t, "Acme Corp", updated.Name)
	assert.Equal(t, "sales@acme.test", updated.Email)

	rec = s.do(t, http.MethodGet, "/api/vendors", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.Vendor](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/api/vendors/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/vendors/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Vendor not found", errorMessage(t, rec))
}

func TestVendors_EmptyList(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/vendors", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestVendors_DuplicateEmail(t *testing.T) {
	s := newTestServer(t)
	body := map[string]string{"name": "Acme", "email": "sales@acme.test"}

	rec := s.do(t, http.MethodPost, "/api/vendors", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": "Other", "email": "sales@acme.test"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "A vendor with this email already exists", errorMessage(t, rec))

	vendors, err := s.store.ListVendors()
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestVendors_Validation(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []map[string]string{
		{"name": "Acme"},
		{"email": "sales@acme.test"},
		{"name": "  ", "email": "sales@acme.test"},
	} {
		rec := s.do(t, http.MethodPost, "/api/vendors", body, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Name and email are required", errorMessage(t, rec))
	}
}

func TestCreateRFP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/rfps/create", map[string]string{"naturalLanguage": "20 laptops with 16GB RAM, budget $50k"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decode[storage.RFP](t, rec)
	assert.Equal(t, "Office Laptops", got.Title)
	assert.Equal(t, storage.RFPStatusDraft, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Laptop", got.Items[0].Name)
}

func TestCreateRFP_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		response string
		code     int
		message  string
	}{
		{"empty input", map[string]string{"naturalLanguage": "   "}, rfpJSON, http.StatusBadRequest, "naturalLanguage is required"},
		{"missing body", nil, rfpJSON, http.StatusBadRequest, "naturalLanguage is required"},
		{"unparseable model output", map[string]string{"naturalLanguage": "pens"}, "sorry, I cannot help", http.StatusInternalServerError, "Failed to parse AI response. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(d *Deps) {
				gen := textgen.GeneratorFunc(func(context.Context, string) (string, error) { return tt.response, nil })
				d.Creator = rfp.NewCreator(gen, d.Store, nil, nil)
			})
			rec := s.do(t, http.MethodPost, "/api/rfps/create", tt.body, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))

			rfps, err := s.store.ListRFPs()
			require.NoError(t, err)
			assert.Empty(t, rfps)
		})
	}
}

func TestGetRFP_Detail(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)

	rec := s.do(t, http.MethodGet, "/api/rfps/"+p.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.JSONEq(t, `"Laptops"`, string(detail["title"]))
	assert.JSONEq(t, `[]`, string(detail["vendors"]))
	assert.JSONEq(t, `[]`, string(detail["proposals"]))

	rec = s.do(t, http.MethodGet, "/api/rfps/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RFP not found", errorMessage(t, rec))
}

func TestUpdateRFP(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)

	rec := s.do(t, http.MethodPut, "/api/rfps/"+p.ID, map[string]any{"budget": "$60,000", "status": "closed"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[storage.RFP](t, rec)
	assert.Equal(t, "$60,000", got.Budget)
	assert.Equal(t, storage.RFPStatusClosed, got.Status)
	assert.Equal(t, "Laptops", got.Title)
	assert.Len(t, got.Items, 1)

	rec = s.do(t, http.MethodPut, "/api/rfps/"+p.ID, map[string]any{"status": "archived"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/rfps/"+p.ID, map[string]any{"title": " "}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/rfps/missing", map[string]any{"budget": "1"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRFP(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)

	rec := s.do(t, http.MethodDelete, "/api/rfps/"+p.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/rfps/"+p.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendRFP(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)
	good := seedVendor(t, s.store, "Acme", "sales@acme.test")
	bad := seedVendor(t, s.store, "Bolt", "bids@bolt.test")
	s.sender.fail["bids@bolt.test"] = true

	rec := s.do(t, http.MethodPost, "/api/rfps/"+p.ID+"/send", map[string]any{"vendorIds": []string{good.ID, bad.ID}}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[struct {
		Results []dispatch.Result `json:"results"`
	}](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, good.ID, resp.Results[0].VendorID)
	assert.True(t, resp.Results[0].Success)
	assert.False(t, resp.Results[1].Success)
	assert.Equal(t, dispatch.SendFailure, resp.Results[1].Error)

	got, err := s.store.GetRFP(p.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.RFPStatusSent, got.Status)
}

func TestSendRFP_Errors(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)
	v := seedVendor(t, s.store, "Acme", "sales@acme.test")

	tests := []struct {
		name    string
		path    string
		body    any
		code    int
		message string
	}{
		{"no vendors", "/api/rfps/" + p.ID + "/send", map[string]any{"vendorIds": []string{}}, http.StatusBadRequest, "At least one vendor must be selected"},
		{"missing body", "/api/rfps/" + p.ID + "/send", nil, http.StatusBadRequest, "At least one vendor must be selected"},
		{"unknown rfp", "/api/rfps/missing/send", map[string]any{"vendorIds": []string{v.ID}}, http.StatusNotFound, "RFP not found"},
		{"unknown vendor", "/api/rfps/" + p.ID + "/send", map[string]any{"vendorIds": []string{v.ID, "ghost"}}, http.StatusNotFound, "One or more vendors not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, tt.path, tt.body, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
	assert.Empty(t, s.sender.sent)
}

func TestRecommend(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/rfps/any/recommend", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"recommendedVendor":"Acme"}`, rec.Body.String())
}

func TestRecommend_Errors(t *testing.T) {
	tests := []struct {
		err     error
		code    int
		message string
	}{
		{proposal.ErrRFPNotFound, http.StatusNotFound, "RFP not found"},
		{proposal.ErrNoProposals, http.StatusNotFound, "No proposals found for this RFP"},
		{proposal.ErrParse, http.StatusInternalServerError, "Failed to generate recommendation. Please try again."},
		{errors.New("upstream down"), http.StatusInternalServerError, "Failed to generate recommendation"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			s := newTestServer(t, func(d *Deps) { d.Recommender = &mockRecommender{err: tt.err} })
			rec := s.do(t, http.MethodGet, "/api/rfps/r1/recommend", nil, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestParseProposal(t *testing.T) {
	parser := &mockParser{proposal: storage.Proposal{ID: "p1", TotalCost: "$1,000"}}
	s := newTestServer(t, func(d *Deps) { d.Parser = parser })

	rec := s.do(t, http.MethodPost, "/api/proposals/parse", map[string]string{"rawEmailId": "e1"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "$1,000", decode[storage.Proposal](t, rec).TotalCost)
	assert.Equal(t, []string{"e1"}, parser.calls)
}

func TestParseProposal_Errors(t *testing.T) {
	tests := []struct {
		err     error
		code    int
		message string
	}{
		{proposal.ErrInvalidInput, http.StatusBadRequest, "rawEmailId is required"},
		{proposal.ErrNotFound, http.StatusNotFound, "Raw email or RFP not found"},
		{proposal.ErrParse, http.StatusInternalServerError, "Failed to parse proposal. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			s := newTestServer(t, func(d *Deps) { d.Parser = &mockParser{err: tt.err} })
			rec := s.do(t, http.MethodPost, "/api/proposals/parse", map[string]string{"rawEmailId": "e1"}, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestCompareAndEmails(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusSent)
	v := seedVendor(t, s.store, "Acme", "sales@acme.test")
	email, err := s.store.CreateRawEmail(storage.RawEmail{RFPID: p.ID, VendorID: v.ID, FromEmail: v.Email, Subject: "Re: Laptops", Body: "Total $48,000"})
	require.NoError(t, err)
	_, err = s.store.CreateProposal(storage.Proposal{RawEmailID: email.ID, RFPID: p.ID, VendorID: v.ID, TotalCost: "$48,000"})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/rfps/"+p.ID+"/compare", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cmp := decode[struct {
		RFP       storage.RFP        `json:"rfp"`
		Proposals []storage.Proposal `json:"proposals"`
	}](t, rec)
	assert.Equal(t, "Laptops", cmp.RFP.Title)
	require.Len(t, cmp.Proposals, 1)
	require.NotNil(t, cmp.Proposals[0].Vendor)
	assert.Equal(t, "Acme", cmp.Proposals[0].Vendor.Name)

	rec = s.do(t, http.MethodGet, "/api/rfps/"+p.ID+"/emails", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emails := decode[[]storage.RawEmail](t, rec)
	require.Len(t, emails, 1)
	assert.Equal(t, "Total $48,000", emails[0].Body)

	rec = s.do(t, http.MethodGet, "/api/rfps/missing/compare", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewCache_HitAndInvalidate(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusDraft)
	path := "/api/rfps/" + p.ID

	rec := s.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))

	rec = s.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodPut, path, map[string]any{"title": "Gaming Laptops"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, "Gaming Laptops", decode[storage.RFP](t, rec).Title)
}

func TestViewCache_NotFoundNotCached(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodGet, "/api/rfps/missing", nil, nil)
	rec := s.do(t, http.MethodGet, "/api/rfps/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Zero(t, s.views.Len())
}

func TestViewCache_ListSeesNewRFP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/rfps", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/rfps/create", map[string]string{"naturalLanguage": "laptops"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/rfps", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Len(t, decode[[]storage.RFP](t, rec), 1)
}

func TestWebhook_InvalidSignature(t *testing.T) {
	s := newTestServer(t)
	p := seedRFP(t, s.store, "Laptops", storage.RFPStatusSent)
	v := seedVendor(t, s.store, "Acme", "sales@acme.test")
	_, err := s.store.UpsertRFPVendor(p.ID, v.ID, time.Now())
	require.NoError(t, err)

	body, _ := signedWebhook(t, "msg_1", replyEvent(v.Email, "Re: Laptops", "quote"))
	forged := inbound.SignHeaders("whsec_"+base64.StdEncoding.EncodeToString([]byte("wrong")), "msg_1", time.Now(), body)

	for _, h := range []http.Header{nil, forged} {
		rec := s.do(t, http.MethodPost, "/api/webhooks/resend", body, h)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid signature", errorMessage(t, rec))
	}

	emails, err := s.store.ListRawEmails(p.ID)
	require.NoError(t, err)
	assert.Empty(t, emails)
}

func TestWebhook_UnknownSenderAcknowledged(t *testing.T) {
	s := newTestServer(t)

	body, h := signedWebhook(t, "msg_1", replyEvent("stranger@else.test", "Hello", "hi"))
	rec := s.do(t, http.MethodPost, "/api/webhooks/resend", body, h)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[webhookResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, inbound.StatusUnknownSender, resp.Status)
	assert.Empty(t, resp.RawEmailID)
}

func TestWebhook_BadPayload(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{not json`)
	rec := s.do(t, http.MethodPost, "/api/webhooks/resend", body, inbound.SignHeaders(webhookSecret, "msg_1", time.Now(), body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_NoSecretSkipsVerification(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Verifier = inbound.NewVerifier("") })

	body, _ := json.Marshal(replyEvent("stranger@else.test", "Hello", "hi"))
	rec := s.do(t, http.MethodPost, "/api/webhooks/resend", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestEndToEnd walks an RFP from free text to a correlated vendor reply.
func TestEndToEnd(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vendors", map[string]string{"name": "Acme", "email": "sales@acme.test"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	vendor := decode[storage.Vendor](t, rec)

	rec = s.do(t, http.MethodPost, "/api/rfps/create", map[string]string{"naturalLanguage": "20 laptops"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[storage.RFP](t, rec)

	rec = s.do(t, http.MethodPost, "/api/rfps/"+created.ID+"/send", map[string]any{"vendorIds": []string{vendor.ID}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, s.sender.sent, 1)
	msg := s.sender.sent[0]
	assert.Equal(t, []string{"sales@acme.test"}, msg.To)
	assert.Equal(t, "Office Laptops [REF:"+created.ID+"]", msg.Subject)
	assert.True(t, strings.Contains(msg.Text, "Laptop"))

	// Warm the detail view so the reply has something to invalidate.
	rec = s.do(t, http.MethodGet, "/api/rfps/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body, h := signedWebhook(t, "msg_reply", replyEvent("Acme Sales <sales@acme.test>", "Re: "+msg.Subject, "We can deliver 20 laptops for $48,000."))
	rec = s.do(t, http.MethodPost, "/api/webhooks/resend", body, h)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[webhookResponse](t, rec)
	assert.Equal(t, inbound.StatusStored, resp.Status)
	require.NotEmpty(t, resp.RawEmailID)

	raw, err := s.store.GetRawEmail(resp.RawEmailID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, raw.RFPID)
	assert.Equal(t, vendor.ID, raw.VendorID)
	assert.Equal(t, "We can deliver 20 laptops for $48,000.", raw.Body)

	link, err := s.store.GetRFPVendor(created.ID, vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.LinkStatusResponded, link.Status)

	rec = s.do(t, http.MethodGet, "/api/rfps/"+created.ID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "miss", rec.Header().Get("X-Cache"))
	assert.Equal(t, storage.RFPStatusResponded, decode[storage.RFP](t, rec).Status)

	rec = s.do(t, http.MethodGet, "/api/rfps/"+created.ID+"/emails", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]storage.RawEmail](t, rec), 1)
}
