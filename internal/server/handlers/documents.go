package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docgate/docgate/internal/client"
	"github.com/docgate/docgate/internal/core"
	apperrors "github.com/docgate/docgate/internal/errors"
	"github.com/docgate/docgate/internal/metrics"
	"github.com/docgate/docgate/internal/observability"
)

// SignatureHeader carries the detached document signature on relay requests.
const SignatureHeader = "X-Signature"

// DefaultMaxBodyBytes caps relay request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 4 << 20

// SubmissionJournal records relay submissions.
type SubmissionJournal interface {
	RecordSubmission(ctx context.Context, sub *core.Submission) error
}

// DocumentsHandler relays create-document calls through one shared client,
// so every inbound caller draws from the same quota.
type DocumentsHandler struct {
	Creator      client.DocumentCreator
	Journal      SubmissionJournal
	MaxBodyBytes int64
	Clock        func() time.Time
}

// DocumentResponse is the relay reply: the registry response plus the
// journal entry ID.
type DocumentResponse struct {
	SubmissionID string                `json:"submission_id"`
	Status       core.SubmissionStatus `json:"status"`
	Value        string                `json:"value,omitempty"`
	Error        *core.APIError        `json:"error,omitempty"`
}

// Create handles POST /v1/documents.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Creator == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("document relay is not configured"))
		return
	}

	doc, envelopeErr := h.decodeDocument(w, r)
	if envelopeErr != nil {
		respondWithError(w, r, envelopeErr)
		return
	}

	sub := &core.Submission{
		ID:          uuid.NewString(),
		DocumentID:  doc.ID,
		Source:      "relay",
		RequestedAt: h.now(),
	}

	resp, err := h.Creator.CreateDocument(r.Context(), doc, strings.TrimSpace(r.Header.Get(SignatureHeader)))
	sub.CompletedAt = h.now()
	client.ApplyOutcome(sub, resp, err)
	metrics.RecordInvocation(sub.Status, sub.Duration())
	h.record(r.Context(), sub)

	if err != nil {
		respondWithError(w, r, apperrors.FromClientError(r.Context(), err))
		return
	}

	body := DocumentResponse{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		Value:        resp.Value,
		Error:        resp.Error,
	}

	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *DocumentsHandler) decodeDocument(w http.ResponseWriter, r *http.Request) (*core.Document, error) {
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.WrapPayloadTooLarge(r.Context(), err, "request body exceeds the configured limit")
		}
		return nil, apperrors.WrapInvalidInput(r.Context(), err, "failed to read request body")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, apperrors.NewInvalidInputError("request body must contain a document")
	}

	var doc core.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, apperrors.WrapInvalidInput(r.Context(), err, "request body is not a valid document")
	}
	return &doc, nil
}

// record writes the journal entry. A journal failure is logged and does not
// fail the relay call; the registry has already seen the document.
func (h *DocumentsHandler) record(ctx context.Context, sub *core.Submission) {
	if h.Journal == nil {
		return
	}
	if err := h.Journal.RecordSubmission(context.WithoutCancel(ctx), sub); err != nil && observability.ServerLogger != nil {
		observability.ServerLogger.Warn("Failed to record submission",
			zap.String("submission_id", sub.ID),
			zap.Error(err))
	}
}

func (h *DocumentsHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now().UTC()
}
