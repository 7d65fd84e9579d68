package core

import "time"

// SubmissionStatus classifies the outcome of one document submission.
type SubmissionStatus string

const (
	SubmissionAccepted  SubmissionStatus = "accepted"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionTransport SubmissionStatus = "transport_error"
	SubmissionDecode    SubmissionStatus = "decode_error"
	SubmissionFailed    SubmissionStatus = "failed"
)

// Submission records one create-document call and its outcome.
type Submission struct {
	ID          string           `json:"id"`
	DocumentID  string           `json:"doc_id,omitempty"`
	Source      string           `json:"source,omitempty"`
	Status      SubmissionStatus `json:"status"`
	Value       string           `json:"value,omitempty"`
	ErrorCode   string           `json:"error_code,omitempty"`
	Message     string           `json:"message,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Duration returns how long the call took, including time spent waiting for a
// permit.
func (s *Submission) Duration() time.Duration {
	if s == nil || s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.RequestedAt)
}
