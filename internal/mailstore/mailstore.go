// Package mailstore persists incoming emails and the replies drafted for
// them, and reports aggregate statistics over both.
package mailstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmailNotFound is returned when an email id is absent.
	ErrEmailNotFound = errors.New("email not found")
	// ErrResponseNotFound is returned when a response id is absent.
	ErrResponseNotFound = errors.New("response not found")
)

// Email statuses.
const (
	EmailStatusPending   = "pending"
	EmailStatusQueued    = "queued"
	EmailStatusResponded = "responded"
	EmailStatusFailed    = "failed"
	EmailStatusIgnored   = "ignored"
)

// Response statuses.
const (
	ResponseStatusDraft = "draft"
	ResponseStatusSent  = "sent"
)

// Email is one received support email.
type Email struct {
	ID         string
	MessageID  string
	Sender     string
	Subject    string
	Body       string
	Sentiment  string
	Category   string
	Priority   string
	Status     string
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// Response is one drafted or sent reply.
type Response struct {
	ID              string
	EmailID         string
	ReplyText       string
	Confidence      float64
	FallbackUsed    bool
	UsedDocumentIDs []string
	Status          string
	CreatedAt       time.Time
	SentAt          *time.Time
}

// Analytics aggregates store-wide counters for the dashboard surface.
type Analytics struct {
	TotalEmails     int
	EmailsByStatus  map[string]int
	TotalResponses  int
	FallbackCount   int
	SentCount       int
	AvgConfidence   float64
	FallbackRate    float64 // fallback responses / total responses
	UrgentBacklog   int     // urgent emails not yet responded
	EmailsByCat     map[string]int
}

// Store persists emails and responses in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New wraps a migrated database handle.
func New(sqlDB *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: sqlDB, logger: logger}
}

// SaveEmail inserts an email, assigning an id if empty. Duplicate message ids
// are not re-inserted; the stored email is returned with created=false so
// re-fetching the same mailbox stays idempotent.
func (s *Store) SaveEmail(ctx context.Context, email Email) (Email, bool, error) {
	if email.ID == "" {
		email.ID = uuid.NewString()
	}
	if email.Status == "" {
		email.Status = EmailStatusPending
	}
	if email.Priority == "" {
		email.Priority = "normal"
	}
	if email.ReceivedAt.IsZero() {
		email.ReceivedAt = time.Now().UTC()
	}
	email.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (id, message_id, sender, subject, body, sentiment, category, priority, status, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`,
		email.ID, email.MessageID, email.Sender, email.Subject, email.Body,
		email.Sentiment, email.Category, email.Priority, email.Status,
		email.ReceivedAt, email.CreatedAt)
	if err != nil {
		return Email{}, false, fmt.Errorf("inserting email: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Email{}, false, err
	}
	if affected == 0 {
		existing, err := s.GetEmailByMessageID(ctx, email.MessageID)
		if err != nil {
			return Email{}, false, err
		}
		return existing, false, nil
	}

	s.logger.Debug("saved email", "id", email.ID, "message_id", email.MessageID)
	return email, true, nil
}

// GetEmail returns an email by id or ErrEmailNotFound.
func (s *Store) GetEmail(ctx context.Context, id string) (Email, error) {
	return s.scanEmail(s.db.QueryRowContext(ctx, `
		SELECT id, message_id, sender, subject, body, sentiment, category, priority, status, received_at, created_at
		FROM emails WHERE id = ?`, id))
}

// GetEmailByMessageID returns an email by its transport message id.
func (s *Store) GetEmailByMessageID(ctx context.Context, messageID string) (Email, error) {
	return s.scanEmail(s.db.QueryRowContext(ctx, `
		SELECT id, message_id, sender, subject, body, sentiment, category, priority, status, received_at, created_at
		FROM emails WHERE message_id = ?`, messageID))
}

// UpdateEmailTriage records the triage verdict for an email.
func (s *Store) UpdateEmailTriage(ctx context.Context, id, sentiment, category, priority string) error {
	return s.updateEmail(ctx, id, `
		UPDATE emails SET sentiment = ?, category = ?, priority = ? WHERE id = ?`,
		sentiment, category, priority, id)
}

// UpdateEmailStatus moves an email through its lifecycle.
func (s *Store) UpdateEmailStatus(ctx context.Context, id, status string) error {
	return s.updateEmail(ctx, id, "UPDATE emails SET status = ? WHERE id = ?", status, id)
}

func (s *Store) updateEmail(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating email %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrEmailNotFound, id)
	}
	return nil
}

// ListEmails returns emails, optionally filtered by status, newest first.
func (s *Store) ListEmails(ctx context.Context, status string, limit int) ([]Email, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, message_id, sender, subject, body, sentiment, category, priority, status, received_at, created_at
		FROM emails`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY received_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		email, err := s.scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// SaveResponse stores a drafted reply, assigning an id if empty.
func (s *Store) SaveResponse(ctx context.Context, resp Response) (Response, error) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.Status == "" {
		resp.Status = ResponseStatusDraft
	}
	resp.CreatedAt = time.Now().UTC()

	docIDs, err := json.Marshal(resp.UsedDocumentIDs)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling document ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (id, email_id, reply_text, confidence, fallback_used, used_document_ids, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID, resp.EmailID, resp.ReplyText, resp.Confidence,
		resp.FallbackUsed, string(docIDs), resp.Status, resp.CreatedAt)
	if err != nil {
		return Response{}, fmt.Errorf("inserting response: %w", err)
	}

	s.logger.Debug("saved response",
		"id", resp.ID, "email_id", resp.EmailID,
		"confidence", resp.Confidence, "fallback", resp.FallbackUsed)
	return resp, nil
}

// MarkResponseSent flips a draft to sent and stamps the send time.
func (s *Store) MarkResponseSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE responses SET status = ?, sent_at = ? WHERE id = ?",
		ResponseStatusSent, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking response sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %q", ErrResponseNotFound, id)
	}
	return nil
}

// ResponsesForEmail returns all replies drafted for one email, newest first.
func (s *Store) ResponsesForEmail(ctx context.Context, emailID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email_id, reply_text, confidence, fallback_used, used_document_ids, status, created_at, sent_at
		FROM responses WHERE email_id = ? ORDER BY created_at DESC`, emailID)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var (
			resp   Response
			docIDs string
			sentAt sql.NullTime
		)
		if err := rows.Scan(&resp.ID, &resp.EmailID, &resp.ReplyText, &resp.Confidence,
			&resp.FallbackUsed, &docIDs, &resp.Status, &resp.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}
		if docIDs != "" {
			if err := json.Unmarshal([]byte(docIDs), &resp.UsedDocumentIDs); err != nil {
				s.logger.Warn("failed to parse document ids", "response_id", resp.ID, "error", err)
			}
		}
		if sentAt.Valid {
			t := sentAt.Time
			resp.SentAt = &t
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// Analytics computes aggregate counters across emails and responses.
func (s *Store) Analytics(ctx context.Context) (Analytics, error) {
	analytics := Analytics{
		EmailsByStatus: make(map[string]int),
		EmailsByCat:    make(map[string]int),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM emails GROUP BY status")
	if err != nil {
		return Analytics{}, fmt.Errorf("counting emails by status: %w", err)
	}
	if err := scanCounts(rows, analytics.EmailsByStatus, &analytics.TotalEmails); err != nil {
		return Analytics{}, err
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM emails WHERE category != '' GROUP BY category")
	if err != nil {
		return Analytics{}, fmt.Errorf("counting emails by category: %w", err)
	}
	if err := scanCounts(rows, analytics.EmailsByCat, nil); err != nil {
		return Analytics{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(fallback_used), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(confidence), 0)
		FROM responses`, ResponseStatusSent).
		Scan(&analytics.TotalResponses, &analytics.FallbackCount, &analytics.SentCount, &analytics.AvgConfidence)
	if err != nil {
		return Analytics{}, fmt.Errorf("aggregating responses: %w", err)
	}
	if analytics.TotalResponses > 0 {
		analytics.FallbackRate = float64(analytics.FallbackCount) / float64(analytics.TotalResponses)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM emails WHERE priority = 'urgent' AND status NOT IN (?, ?)`,
		EmailStatusResponded, EmailStatusIgnored).
		Scan(&analytics.UrgentBacklog)
	if err != nil {
		return Analytics{}, fmt.Errorf("counting urgent backlog: %w", err)
	}

	return analytics, nil
}

func scanCounts(rows *sql.Rows, into map[string]int, total *int) error {
	defer rows.Close()
	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("scanning count row: %w", err)
		}
		into[key] = count
		if total != nil {
			*total += count
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanEmail(row rowScanner) (Email, error) {
	var email Email
	err := row.Scan(&email.ID, &email.MessageID, &email.Sender, &email.Subject, &email.Body,
		&email.Sentiment, &email.Category, &email.Priority, &email.Status,
		&email.ReceivedAt, &email.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Email{}, ErrEmailNotFound
		}
		return Email{}, fmt.Errorf("scanning email: %w", err)
	}
	return email, nil
}
