package output

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docgate/docgate/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders submission outcomes and quota windows.
type Formatter interface {
	FormatSubmissions(subs []*core.Submission) (string, error)
	FormatRateLimits(entries []core.EndpointRateLimit) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &TableFormatter{Markdown: true}
	default:
		return &TableFormatter{}
	}
}

// Summary counts submissions per status.
type Summary struct {
	Total    int                           `json:"total"`
	ByStatus map[core.SubmissionStatus]int `json:"by_status"`
}

// Summarize tallies subs by status. Nil entries are skipped.
func Summarize(subs []*core.Submission) Summary {
	summary := Summary{ByStatus: map[core.SubmissionStatus]int{}}
	for _, sub := range subs {
		if sub == nil {
			continue
		}
		summary.Total++
		summary.ByStatus[sub.Status]++
	}
	return summary
}

// Accepted returns how many submissions the registry accepted.
func (s Summary) Accepted() int {
	return s.ByStatus[core.SubmissionAccepted]
}

// Failed returns how many submissions did not end up accepted.
func (s Summary) Failed() int {
	return s.Total - s.Accepted()
}

// String renders the summary as "3 submitted: 2 accepted, 1 rejected".
func (s Summary) String() string {
	if s.Total == 0 {
		return "0 submitted"
	}

	statuses := make([]string, 0, len(s.ByStatus))
	for status := range s.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)

	parts := make([]string, 0, len(statuses))
	for _, status := range statuses {
		parts = append(parts, fmt.Sprintf("%d %s", s.ByStatus[core.SubmissionStatus(status)], status))
	}
	return fmt.Sprintf("%d submitted: %s", s.Total, strings.Join(parts, ", "))
}
