package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/invoker"
	apperrors "github.com/docgate/docgate/internal/errors"
)

type stubCreator struct {
	resp *core.DocumentCreatedResponse
	err  error

	mu        sync.Mutex
	docs      []*core.Document
	signature string
}

func (s *stubCreator) CreateDocument(ctx context.Context, doc *core.Document, signature string) (*core.DocumentCreatedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	s.signature = signature
	return s.resp, s.err
}

type memoryJournal struct {
	mu   sync.Mutex
	subs []core.Submission
	err  error
}

func (m *memoryJournal) RecordSubmission(ctx context.Context, sub *core.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, *sub)
	return m.err
}

const relayDocument = `{"doc_id":"doc-7","doc_type":"LP_INTRODUCE_GOODS","production_date":"2024-03-15"}`

func postDocument(h *DocumentsHandler, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func TestDocumentsHandlerRelaysDocument(t *testing.T) {
	creator := &stubCreator{resp: &core.DocumentCreatedResponse{Value: "reg-42"}}
	journal := &memoryJournal{}
	h := &DocumentsHandler{Creator: creator, Journal: journal, Clock: fixedClock()}

	rec := postDocument(h, relayDocument, map[string]string{SignatureHeader: " sig-1 "})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DocumentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, core.SubmissionAccepted, resp.Status)
	require.Equal(t, "reg-42", resp.Value)
	require.NotEmpty(t, resp.SubmissionID)

	require.Len(t, creator.docs, 1)
	require.Equal(t, "doc-7", creator.docs[0].ID)
	require.Equal(t, "2024-03-15", creator.docs[0].ProductionDate.String())
	require.Equal(t, "sig-1", creator.signature)

	require.Len(t, journal.subs, 1)
	require.Equal(t, resp.SubmissionID, journal.subs[0].ID)
	require.Equal(t, "relay", journal.subs[0].Source)
	require.Equal(t, core.SubmissionAccepted, journal.subs[0].Status)
}

func TestDocumentsHandlerRegistryRejection(t *testing.T) {
	creator := &stubCreator{resp: &core.DocumentCreatedResponse{
		BaseResponse: core.BaseResponse{Error: &core.APIError{Code: "INVALID_INN", Message: "bad inn"}},
	}}
	h := &DocumentsHandler{Creator: creator}

	rec := postDocument(h, relayDocument, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp DocumentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, core.SubmissionRejected, resp.Status)
	require.NotNil(t, resp.Error)
	require.Equal(t, "INVALID_INN", resp.Error.Code)
}

func TestDocumentsHandlerMapsClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"transport", &invoker.TransportError{URL: "https://registry.test", Err: errors.New("refused")}, http.StatusBadGateway, apperrors.CodeExternalService},
		{"decode", &invoker.DecodeError{URL: "https://registry.test", StatusCode: 200, Err: errors.New("eof")}, http.StatusBadGateway, apperrors.CodeBadUpstreamResponse},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, apperrors.CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			journal := &memoryJournal{}
			h := &DocumentsHandler{Creator: &stubCreator{err: tt.err}, Journal: journal}

			rec := postDocument(h, relayDocument, nil)
			require.Equal(t, tt.status, rec.Code)

			var body apperrors.HTTPErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, tt.code, body.Error.Code)
			require.Len(t, journal.subs, 1)
			require.NotEqual(t, core.SubmissionAccepted, journal.subs[0].Status)
		})
	}
}

func TestDocumentsHandlerRejectsBadBodies(t *testing.T) {
	creator := &stubCreator{resp: &core.DocumentCreatedResponse{}}
	h := &DocumentsHandler{Creator: creator, MaxBodyBytes: 64}

	rec := postDocument(h, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postDocument(h, `{"doc_id":`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postDocument(h, `{"doc_id":"`+strings.Repeat("x", 128)+`"}`, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	require.Empty(t, creator.docs)
}

func TestDocumentsHandlerJournalFailureDoesNotFailRelay(t *testing.T) {
	h := &DocumentsHandler{
		Creator: &stubCreator{resp: &core.DocumentCreatedResponse{Value: "ok"}},
		Journal: &memoryJournal{err: errors.New("disk full")},
	}

	rec := postDocument(h, relayDocument, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentsHandlerWithoutClient(t *testing.T) {
	rec := postDocument(&DocumentsHandler{}, relayDocument, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
