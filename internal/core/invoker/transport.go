package invoker

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const defaultConnectRetries = 2

// TransportOptions configures the HTTP client used by HTTPInvoker.
type TransportOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// RetryOnConnectionFailure redials when a connection cannot be
	// established. Requests that reached the server are never replayed.
	RetryOnConnectionFailure bool
	ConnectRetries           int
}

// NewHTTPClient builds an *http.Client honouring the connect and read
// timeouts. The read timeout bounds the wait for response headers.
func NewHTTPClient(opts TransportOptions) *http.Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		ExpectContinueTimeout: time.Second,
	}

	var transport http.RoundTripper = base
	if opts.RetryOnConnectionFailure {
		retries := opts.ConnectRetries
		if retries <= 0 {
			retries = defaultConnectRetries
		}
		transport = &connectRetryTransport{base: base, retries: retries}
	}

	return &http.Client{Transport: transport}
}

// connectRetryTransport retries a request whose connection could not be
// dialed.
type connectRetryTransport struct {
	base    http.RoundTripper
	retries int
}

func (t *connectRetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 0; attempt < t.retries && err != nil && isDialError(err); attempt++ {
		if req.Context().Err() != nil {
			break
		}
		retry, cloneErr := rewind(req)
		if cloneErr != nil {
			break
		}
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone.Body = body
	return clone, nil
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
