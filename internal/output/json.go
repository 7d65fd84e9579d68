package output

import (
	"encoding/json"

	"github.com/docgate/docgate/internal/core"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

type submissionsDocument struct {
	Summary     Summary            `json:"summary"`
	Submissions []*core.Submission `json:"submissions"`
}

// FormatSubmissions renders subs and their summary as one JSON object.
func (f *JSONFormatter) FormatSubmissions(subs []*core.Submission) (string, error) {
	kept := make([]*core.Submission, 0, len(subs))
	for _, sub := range subs {
		if sub != nil {
			kept = append(kept, sub)
		}
	}
	return f.marshal(submissionsDocument{Summary: Summarize(kept), Submissions: kept})
}

// FormatRateLimits renders entries as a JSON array.
func (f *JSONFormatter) FormatRateLimits(entries []core.EndpointRateLimit) (string, error) {
	if entries == nil {
		entries = []core.EndpointRateLimit{}
	}
	return f.marshal(entries)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
