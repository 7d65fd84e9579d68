package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Invoker performs one request/response exchange and decodes the response
// into out.
type Invoker interface {
	Invoke(ctx context.Context, req *Request, out any) error
}

// Logger is the subset of the zap/gofulmen logger API the invoker uses.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Signer attaches authentication derived from signature to an outbound
// request.
type Signer func(ctx context.Context, req *http.Request, signature string) error

// Request describes one outbound call. Path is appended to the invoker's
// base URL.
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Header    http.Header
	Signature string
}

// RequestIDHeader correlates an outbound call with the inbound request that
// caused it.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID returns a context whose outbound calls carry id in
// RequestIDHeader.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the ID set by WithRequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// NewJSONRequest serializes body and returns a POST request for path.
func NewJSONRequest(path string, body any) (*Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return &Request{Method: http.MethodPost, Path: path, Body: payload}, nil
}

// HTTPInvoker sends requests to BaseURL with no rate gating.
type HTTPInvoker struct {
	BaseURL string
	Client  *http.Client
	Signer  Signer
	Logger  Logger
	Clock   func() time.Time
}

// NewHTTPInvoker returns an invoker with a client built from opts.
func NewHTTPInvoker(baseURL string, opts TransportOptions) *HTTPInvoker {
	return &HTTPInvoker{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Client:  NewHTTPClient(opts),
	}
}

// Invoke sends req, buffers the whole response body and decodes it into out.
// The response is decoded whatever the status code; registry error
// descriptors arrive in non-2xx bodies.
func (i *HTTPInvoker) Invoke(ctx context.Context, req *Request, out any) error {
	if i == nil {
		return fmt.Errorf("invoker not configured")
	}
	if req == nil {
		return fmt.Errorf("request is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	url := strings.TrimRight(i.BaseURL, "/") + req.Path

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(req.Body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := RequestIDFrom(ctx); id != "" && httpReq.Header.Get(RequestIDHeader) == "" {
		httpReq.Header.Set(RequestIDHeader, id)
	}

	if i.Signer != nil {
		if err := i.Signer(ctx, httpReq, req.Signature); err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
	}

	client := i.Client
	if client == nil {
		client = http.DefaultClient
	}

	i.logInfo("Performing request",
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("body_bytes", len(req.Body)))

	started := i.now()
	resp, err := client.Do(httpReq)
	if err != nil {
		i.trace(method, url, req.Body, 0, nil, err, started)
		return &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		i.trace(method, url, req.Body, resp.StatusCode, nil, err, started)
		return &TransportError{Method: method, URL: url, Err: fmt.Errorf("read response: %w", err)}
	}

	i.logInfo("Retrieved response",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", body))
	i.trace(method, url, req.Body, resp.StatusCode, body, nil, started)

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return &DecodeError{URL: url, StatusCode: resp.StatusCode, Body: body, Err: err}
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		if carrier, ok := out.(interface{ Err() error }); ok && carrier.Err() != nil {
			return nil
		}
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	return nil
}

func (i *HTTPInvoker) trace(method, url string, reqBody []byte, status int, respBody []byte, err error, started time.Time) {
	entry := TraceEntry{
		Timestamp:   started,
		Method:      method,
		URL:         url,
		RequestBody: rawJSON(reqBody),
		StatusCode:  status,
		Response:    rawJSON(respBody),
		DurationMs:  i.now().Sub(started).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	Trace(entry)
}

func (i *HTTPInvoker) logInfo(msg string, fields ...zap.Field) {
	if i.Logger != nil {
		i.Logger.Info(msg, fields...)
	}
}

func (i *HTTPInvoker) now() time.Time {
	if i != nil && i.Clock != nil {
		return i.Clock()
	}
	return time.Now().UTC()
}
