package client

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/invoker"
)

// DocumentCreator is the part of Client the Submitter needs.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, doc *core.Document, signature string) (*core.DocumentCreatedResponse, error)
}

// NotSubmittedMessage prefixes the message of items a cancelled batch never
// sent.
const NotSubmittedMessage = "not submitted"

// BatchItem is one document queued for submission.
type BatchItem struct {
	Source    string
	Document  *core.Document
	Signature string
}

// Submitter fans documents out over a fixed number of workers sharing one
// client, so every worker draws from the same quota.
type Submitter struct {
	Client  DocumentCreator
	Workers int
	Clock   func() time.Time
	// OnResult, when set, is called from the worker goroutine as soon as a
	// submission completes. It must be safe for concurrent use.
	OnResult func(sub *core.Submission)
}

type batchJob struct {
	index int
	item  BatchItem
}

// Submit sends every item and returns one submission per item in input
// order. A failed call is recorded, not returned. Items not yet started when
// ctx is done are recorded as failed.
func (s *Submitter) Submit(ctx context.Context, items []BatchItem) []*core.Submission {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]*core.Submission, len(items))
	if len(items) == 0 {
		return results
	}

	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan batchJob)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for job := range jobs {
			sub := s.submitOne(ctx, job.item)
			results[job.index] = sub
			if s.OnResult != nil {
				s.OnResult(sub)
			}
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}

sendLoop:
	for i, item := range items {
		select {
		case <-ctx.Done():
			break sendLoop
		case jobs <- batchJob{index: i, item: item}:
		}
	}
	close(jobs)
	wg.Wait()

	for i, sub := range results {
		if sub != nil {
			continue
		}
		now := s.now()
		results[i] = &core.Submission{
			ID:          uuid.NewString(),
			DocumentID:  documentID(items[i].Document),
			Source:      items[i].Source,
			Status:      core.SubmissionFailed,
			Message:     NotSubmittedMessage + ": " + ctx.Err().Error(),
			RequestedAt: now,
			CompletedAt: now,
		}
	}

	return results
}

func (s *Submitter) submitOne(ctx context.Context, item BatchItem) *core.Submission {
	sub := &core.Submission{
		ID:          uuid.NewString(),
		DocumentID:  documentID(item.Document),
		Source:      item.Source,
		RequestedAt: s.now(),
	}

	var (
		resp *core.DocumentCreatedResponse
		err  error
	)
	if s.Client == nil {
		err = errors.New("client is not configured")
	} else {
		resp, err = s.Client.CreateDocument(ctx, item.Document, item.Signature)
	}
	sub.CompletedAt = s.now()

	ApplyOutcome(sub, resp, err)
	return sub
}

// ApplyOutcome fills the status, value and error fields of sub from the
// result of a CreateDocument call.
func ApplyOutcome(sub *core.Submission, resp *core.DocumentCreatedResponse, err error) {
	if sub == nil {
		return
	}

	if err != nil {
		sub.Status = ClassifyError(err)
		sub.Message = err.Error()
		var statusErr *invoker.StatusError
		if errors.As(err, &statusErr) {
			sub.ErrorCode = statusCodeString(statusErr.StatusCode)
		}
		return
	}

	if resp == nil {
		sub.Status = core.SubmissionFailed
		sub.Message = "empty response"
		return
	}

	if resp.Error != nil {
		sub.Status = core.SubmissionRejected
		sub.ErrorCode = resp.Error.Code
		sub.Message = resp.Error.Message
		return
	}

	sub.Status = core.SubmissionAccepted
	sub.Value = resp.Value
}

// ClassifyError maps a CreateDocument error to a submission status.
func ClassifyError(err error) core.SubmissionStatus {
	var (
		transportErr *invoker.TransportError
		decodeErr    *invoker.DecodeError
		statusErr    *invoker.StatusError
	)
	switch {
	case err == nil:
		return core.SubmissionAccepted
	case errors.As(err, &transportErr):
		return core.SubmissionTransport
	case errors.As(err, &decodeErr):
		return core.SubmissionDecode
	case errors.As(err, &statusErr):
		return core.SubmissionRejected
	default:
		return core.SubmissionFailed
	}
}

func statusCodeString(code int) string {
	if code == 0 {
		return ""
	}
	return "HTTP_" + strconv.Itoa(code)
}

func documentID(doc *core.Document) string {
	if doc == nil {
		return ""
	}
	return doc.ID
}

func (s *Submitter) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}
