package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date encoded as "YYYY-MM-DD".
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(value string) (Date, error) {
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return Date{Time: parsed}, nil
}

// String formats the date as "YYYY-MM-DD".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Full RFC 3339 timestamps
// are accepted and truncated to their date.
func (d *Date) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(dateLayout, value); err == nil {
		d.Time = parsed
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return fmt.Errorf("invalid date %q", value)
	}
	d.Time = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
	return nil
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" string. It shadows the
// RFC 3339 encoding promoted from time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the same forms as UnmarshalText. null leaves the
// date unchanged.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("invalid date %s: %w", data, err)
	}
	return d.UnmarshalText([]byte(value))
}

// Description carries the participant the document is filed for.
type Description struct {
	ParticipantInn string `json:"participantInn,omitempty" yaml:"participantInn,omitempty"`
}

// Product is a single line item of a document.
type Product struct {
	CertificateDocument       string `json:"certificate_document,omitempty" yaml:"certificate_document,omitempty"`
	CertificateDocumentDate   *Date  `json:"certificate_document_date,omitempty" yaml:"certificate_document_date,omitempty"`
	CertificateDocumentNumber string `json:"certificate_document_number,omitempty" yaml:"certificate_document_number,omitempty"`
	OwnerInn                  string `json:"owner_inn,omitempty" yaml:"owner_inn,omitempty"`
	ProducerInn               string `json:"producer_inn,omitempty" yaml:"producer_inn,omitempty"`
	ProductionDate            *Date  `json:"production_date,omitempty" yaml:"production_date,omitempty"`
	TnvedCode                 string `json:"tnved_code,omitempty" yaml:"tnved_code,omitempty"`
	UitCode                   string `json:"uit_code,omitempty" yaml:"uit_code,omitempty"`
	UituCode                  string `json:"uitu_code,omitempty" yaml:"uitu_code,omitempty"`
}

// Document is the payload submitted to the registry. Empty fields are
// omitted on the wire.
type Document struct {
	Description    *Description `json:"description,omitempty" yaml:"description,omitempty"`
	ID             string       `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	Status         string       `json:"doc_status,omitempty" yaml:"doc_status,omitempty"`
	Type           string       `json:"doc_type,omitempty" yaml:"doc_type,omitempty"`
	ImportRequest  *bool        `json:"importRequest,omitempty" yaml:"importRequest,omitempty"`
	OwnerInn       string       `json:"owner_inn,omitempty" yaml:"owner_inn,omitempty"`
	ParticipantInn string       `json:"participant_inn,omitempty" yaml:"participant_inn,omitempty"`
	ProducerInn    string       `json:"producer_inn,omitempty" yaml:"producer_inn,omitempty"`
	ProductionDate *Date        `json:"production_date,omitempty" yaml:"production_date,omitempty"`
	ProductionType string       `json:"production_type,omitempty" yaml:"production_type,omitempty"`
	Products       []Product    `json:"products,omitempty" yaml:"products,omitempty"`
	RegDate        *Date        `json:"reg_date,omitempty" yaml:"reg_date,omitempty"`
	RegNumber      string       `json:"reg_number,omitempty" yaml:"reg_number,omitempty"`
}

// APIError is the error descriptor the registry embeds in its responses.
type APIError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return "registry error"
	}
	if e.Code == "" {
		return "registry error: " + e.Message
	}
	return fmt.Sprintf("registry error %s: %s", e.Code, e.Message)
}

// BaseResponse is embedded by every registry response shape.
type BaseResponse struct {
	Error *APIError `json:"error,omitempty"`
}

// Err returns the embedded registry error, or nil when the call succeeded.
func (r *BaseResponse) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}

// DocumentCreatedResponse is returned by the create-document endpoint.
type DocumentCreatedResponse struct {
	BaseResponse
	Value string `json:"value,omitempty"`
}
