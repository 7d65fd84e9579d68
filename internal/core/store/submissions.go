package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docgate/docgate/internal/core"
)

// SubmissionQuery filters the journal. Zero values match everything.
type SubmissionQuery struct {
	DocumentID string
	Status     core.SubmissionStatus
	Since      time.Time
	Limit      int
}

// RecordSubmission appends one outcome to the journal.
func (s *Store) RecordSubmission(ctx context.Context, sub *core.Submission) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if sub == nil {
		return errors.New("submission is required")
	}
	if strings.TrimSpace(sub.ID) == "" {
		return errors.New("submission id is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO submissions (id, doc_id, source, status, value, error_code, message, requested_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.ID,
		nullString(sub.DocumentID),
		nullString(sub.Source),
		string(sub.Status),
		nullString(sub.Value),
		nullString(sub.ErrorCode),
		nullString(sub.Message),
		toMillis(sub.RequestedAt),
		toMillis(sub.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}

// ListSubmissions returns journal entries, newest first.
func (s *Store) ListSubmissions(ctx context.Context, q SubmissionQuery) ([]core.Submission, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		clauses []string
		args    []any
	)
	if id := strings.TrimSpace(q.DocumentID); id != "" {
		clauses = append(clauses, "doc_id = ?")
		args = append(args, id)
	}
	if q.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(q.Status))
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "requested_at >= ?")
		args = append(args, toMillis(q.Since))
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	limit := ""
	if q.Limit > 0 {
		limit = "LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, doc_id, source, status, value, error_code, message, requested_at, completed_at
		FROM submissions
		%s
		ORDER BY requested_at DESC, id
		%s
	`, where, limit), args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	subs := []core.Submission{}
	for rows.Next() {
		var (
			sub                                 core.Submission
			docID, source, value, code, message sql.NullString
			status                              string
			requestedAt, completedAt            int64
		)
		if err := rows.Scan(&sub.ID, &docID, &source, &status, &value, &code, &message, &requestedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan submissions: %w", err)
		}
		sub.DocumentID = docID.String
		sub.Source = source.String
		sub.Status = core.SubmissionStatus(status)
		sub.Value = value.String
		sub.ErrorCode = code.String
		sub.Message = message.String
		sub.RequestedAt = fromMillis(requestedAt)
		sub.CompletedAt = fromMillis(completedAt)
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	return subs, nil
}

// PurgeSubmissions deletes journal entries requested before cutoff.
func (s *Store) PurgeSubmissions(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM submissions WHERE requested_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge submissions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge submissions: %w", err)
	}
	return affected, nil
}

// CountSubmissions returns the number of journal entries.
func (s *Store) CountSubmissions(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count submissions: %w", err)
	}
	return count, nil
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
