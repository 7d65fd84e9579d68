package output

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/docgate/docgate/internal/core"
)

// TableFormatter renders rows with go-pretty, as a rounded ASCII table or a
// Markdown table.
type TableFormatter struct {
	Markdown bool
}

// FormatSubmissions renders one row per submission plus a status summary.
func (f *TableFormatter) FormatSubmissions(subs []*core.Submission) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Source", "Doc ID", "Status", "Value / Error", "Requested", "Took"})

	for _, sub := range subs {
		if sub == nil {
			continue
		}
		t.AppendRow(table.Row{
			dash(sub.Source),
			dash(sub.DocumentID),
			string(sub.Status),
			outcomeText(sub),
			formatTime(sub.RequestedAt),
			formatDuration(sub.Duration()),
		})
	}

	// Footers are upper-cased by default; keep the summary as written.
	t.Style().Format.Footer = text.FormatDefault
	t.AppendFooter(table.Row{"", "", "", Summarize(subs).String(), "", ""})
	return f.render(t), nil
}

// FormatRateLimits renders the last recorded window per endpoint.
func (f *TableFormatter) FormatRateLimits(entries []core.EndpointRateLimit) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Endpoint", "Used", "Limit", "Remaining", "Window Start", "Window End"})

	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Endpoint,
			entry.State.RequestCount,
			entry.State.Limit,
			entry.State.Remaining(),
			formatTime(entry.State.WindowStart),
			formatTime(entry.State.WindowEnd),
		})
	}

	if len(entries) == 0 {
		t.AppendRow(table.Row{"(no stored rate limit state)", "", "", "", "", ""})
	}

	return f.render(t), nil
}

func (f *TableFormatter) render(t table.Writer) string {
	if f.Markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func outcomeText(sub *core.Submission) string {
	if sub.Status == core.SubmissionAccepted {
		return dash(sub.Value)
	}
	switch {
	case sub.ErrorCode != "" && sub.Message != "":
		return fmt.Sprintf("%s: %s", sub.ErrorCode, sub.Message)
	case sub.ErrorCode != "":
		return sub.ErrorCode
	default:
		return dash(sub.Message)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	}
	return d.Round(10 * time.Millisecond).String()
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
