package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrimworks/vendorvet/internal/model"
	"github.com/scrimworks/vendorvet/internal/task"
	"github.com/scrimworks/vendorvet/internal/vetting"
)

type fakeExecutor struct {
	fn func(ctx context.Context, instruction string, tier task.ModelTier, out any) error
}

func (f *fakeExecutor) Execute(ctx context.Context, instruction string, tier task.ModelTier, out any) error {
	return f.fn(ctx, instruction, tier, out)
}

type fakeVetter struct {
	result *vetting.Result
	err    error
	vendor string
}

func (f *fakeVetter) Run(ctx context.Context, vendor string) (*vetting.Result, error) {
	f.vendor = vendor
	return f.result, f.err
}

type fakeDiscoverer struct {
	shortlist *model.VendorShortlist
	err       error
	prompt    string
}

func (f *fakeDiscoverer) Run(ctx context.Context, prompt string) (*model.VendorShortlist, error) {
	f.prompt = prompt
	return f.shortlist, f.err
}

// intentExecutor routes every classification call to the given intent and
// answers assist calls with a canned string.
func intentExecutor(intent chatIntent) *fakeExecutor {
	return &fakeExecutor{fn: func(_ context.Context, instruction string, tier task.ModelTier, out any) error {
		if strings.Contains(instruction, "Classify the user's request") {
			*out.(*chatIntent) = intent
			return nil
		}
		*out.(*string) = "General supply-chain guidance."
		return nil
	}}
}

func postChat(t *testing.T, handler http.Handler, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"content": content})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeChat(t *testing.T, rr *httptest.ResponseRecorder) chatMessage {
	t.Helper()
	var msg chatMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &msg))
	return msg
}

func TestBuildRouter_Health(t *testing.T) {
	handler := buildRouter(intentExecutor(chatIntent{Intent: "other"}), &fakeVetter{}, &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Chat_InvalidBody(t *testing.T) {
	handler := buildRouter(intentExecutor(chatIntent{Intent: "other"}), &fakeVetter{}, &fakeDiscoverer{})

	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid request body")
}

func TestBuildRouter_Chat_EmptyContent(t *testing.T) {
	handler := buildRouter(intentExecutor(chatIntent{Intent: "other"}), &fakeVetter{}, &fakeDiscoverer{})

	rr := postChat(t, handler, "   ")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "content is required")
}

func TestBuildRouter_Chat_VetIntent(t *testing.T) {
	vetter := &fakeVetter{result: &vetting.Result{Report: &model.SynthesizedReport{
		Subject:        "Acme Metals",
		Findings:       "Stable supplier with minor logistics exposure.",
		RiskScore:      3.5,
		CourseOfAction: "Proceed with standard contract terms.",
		Citations:      []string{"https://example.com/acme"},
	}}}

	handler := buildRouter(intentExecutor(chatIntent{Intent: "vet", Vendor: "Acme Metals"}), vetter, &fakeDiscoverer{})
	rr := postChat(t, handler, "I need a risk report on Acme Metals")

	require.Equal(t, http.StatusOK, rr.Code)
	msg := decodeChat(t, rr)
	assert.Equal(t, "assistant", msg.Role)
	assert.Equal(t, "report", msg.ContentType)
	assert.Contains(t, msg.Content, "Risk report: Acme Metals")
	assert.Contains(t, msg.Content, "Risk score: 3.5")
	assert.Contains(t, msg.Content, "https://example.com/acme")
	assert.Equal(t, "Acme Metals", vetter.vendor)
}

func TestBuildRouter_Chat_DiscoverIntent(t *testing.T) {
	discoverer := &fakeDiscoverer{shortlist: &model.VendorShortlist{
		Material: "concrete",
		Location: "Riyadh",
		Vendors: []model.VendorDetail{
			{Name: "Riyadh Concrete Co", WebsiteURL: "https://rcc.example.com"},
		},
		Summary: "Found 1 potential vendors for concrete in Riyadh after reviewing an initial list of 3 prospects.",
	}}

	handler := buildRouter(intentExecutor(chatIntent{Intent: "discover"}), &fakeVetter{}, discoverer)
	rr := postChat(t, handler, "find concrete suppliers in Riyadh")

	require.Equal(t, http.StatusOK, rr.Code)
	msg := decodeChat(t, rr)
	assert.Equal(t, "json", msg.ContentType)
	assert.Equal(t, "find concrete suppliers in Riyadh", discoverer.prompt)

	var shortlist model.VendorShortlist
	require.NoError(t, json.Unmarshal([]byte(msg.Content), &shortlist))
	assert.Equal(t, "concrete", shortlist.Material)
	require.Len(t, shortlist.Vendors, 1)
	assert.Equal(t, "Riyadh Concrete Co", shortlist.Vendors[0].Name)
}

func TestBuildRouter_Chat_OtherIntent(t *testing.T) {
	handler := buildRouter(intentExecutor(chatIntent{Intent: "other"}), &fakeVetter{}, &fakeDiscoverer{})
	rr := postChat(t, handler, "what is a good payment term for overseas suppliers?")

	require.Equal(t, http.StatusOK, rr.Code)
	msg := decodeChat(t, rr)
	assert.Equal(t, "text", msg.ContentType)
	assert.Equal(t, "General supply-chain guidance.", msg.Content)
}

func TestBuildRouter_Chat_VetFailureIsChatMessage(t *testing.T) {
	vetter := &fakeVetter{err: context.DeadlineExceeded}

	handler := buildRouter(intentExecutor(chatIntent{Intent: "vet", Vendor: "Acme"}), vetter, &fakeDiscoverer{})
	rr := postChat(t, handler, "vet Acme")

	require.Equal(t, http.StatusOK, rr.Code)
	msg := decodeChat(t, rr)
	assert.Equal(t, "text", msg.ContentType)
	assert.Contains(t, msg.Content, "Vetting Acme failed")
}

func TestBuildRouter_Chat_IntentFailureIsChatMessage(t *testing.T) {
	exec := &fakeExecutor{fn: func(_ context.Context, _ string, _ task.ModelTier, _ any) error {
		return context.DeadlineExceeded
	}}

	handler := buildRouter(exec, &fakeVetter{}, &fakeDiscoverer{})
	rr := postChat(t, handler, "anything")

	require.Equal(t, http.StatusOK, rr.Code)
	msg := decodeChat(t, rr)
	assert.Contains(t, msg.Content, "could not understand")
}

func TestFormatReport_NoCitations(t *testing.T) {
	text := formatReport(&model.SynthesizedReport{
		Subject:        "Acme",
		Findings:       "No material risks identified.",
		RiskScore:      1,
		CourseOfAction: "Proceed.",
	})

	assert.Contains(t, text, "Risk report: Acme")
	assert.NotContains(t, text, "Sources:")
}
