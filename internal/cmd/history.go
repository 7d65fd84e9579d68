package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/docgate/docgate/internal/core"
	"github.com/docgate/docgate/internal/core/store"
	"github.com/docgate/docgate/internal/output"
)

var (
	historyOutput string
	historyOut    string
	historyDocID  string
	historyStatus string
	historySince  string
	historyLimit  int

	historyPurgeOlderThan time.Duration
	historyPurgeYes       bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(historyOutput)
		if err != nil {
			return err
		}

		status, err := parseSubmissionStatus(historyStatus)
		if err != nil {
			return err
		}
		since, err := parseSince(historySince, time.Now())
		if err != nil {
			return err
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		subs, err := db.ListSubmissions(cmd.Context(), store.SubmissionQuery{
			DocumentID: strings.TrimSpace(historyDocID),
			Status:     status,
			Since:      since,
			Limit:      historyLimit,
		})
		if err != nil {
			return err
		}

		rows := make([]*core.Submission, len(subs))
		for i := range subs {
			rows[i] = &subs[i]
		}

		rendered, err := output.NewFormatter(format).FormatSubmissions(rows)
		if err != nil {
			return err
		}

		sink, err := openSink(historyOut)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

var historyPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete recorded submissions older than --older-than",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyPurgeOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		if !historyPurgeYes {
			return errors.New("purge requires --yes")
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().Add(-historyPurgeOlderThan)
		deleted, err := db.PurgeSubmissions(cmd.Context(), cutoff)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d submission(s) requested before %s\n",
			deleted, cutoff.UTC().Format(time.RFC3339))
		return err
	},
}

func parseSubmissionStatus(value string) (core.SubmissionStatus, error) {
	status := core.SubmissionStatus(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case "", core.SubmissionAccepted, core.SubmissionRejected, core.SubmissionTransport,
		core.SubmissionDecode, core.SubmissionFailed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown submission status %q", value)
	}
}

// parseSince accepts a duration back from now ("24h") or an RFC 3339
// timestamp.
func parseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("--since must not be negative")
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a duration like 24h or an RFC 3339 timestamp")
	}
	return t, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyPurgeCmd)

	historyCmd.Flags().StringVar(&historyOutput, "output-format", string(output.FormatTable), "Output format: table|json|markdown")
	historyCmd.Flags().StringVar(&historyOut, "out", "", "Write output to a file (default stdout)")
	historyCmd.Flags().StringVar(&historyDocID, "doc-id", "", "Only show submissions of this document ID")
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "Only show submissions with this status")
	historyCmd.Flags().StringVar(&historySince, "since", "", "Only show submissions since a duration ago (24h) or timestamp")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum number of rows (0 for all)")

	historyPurgeCmd.Flags().DurationVar(&historyPurgeOlderThan, "older-than", 30*24*time.Hour, "Delete submissions requested longer ago than this")
	historyPurgeCmd.Flags().BoolVar(&historyPurgeYes, "yes", false, "Confirm deletion")
}
