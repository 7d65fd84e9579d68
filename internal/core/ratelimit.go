package core

import "time"

// RateLimitState captures the usage of one quota window for an endpoint.
type RateLimitState struct {
	Limit        int       `json:"limit"`
	RequestCount int       `json:"request_count"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
}

// Remaining returns the permits left unused in the window.
func (s RateLimitState) Remaining() int {
	if s.RequestCount >= s.Limit {
		return 0
	}
	return s.Limit - s.RequestCount
}

// EndpointRateLimit is the last recorded window of one endpoint.
type EndpointRateLimit struct {
	Endpoint string         `json:"endpoint"`
	State    RateLimitState `json:"state"`
}
