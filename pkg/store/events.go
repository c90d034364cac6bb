package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cascade/pkg/domain"
)

// AuditEvent is one row of the append-only engine activity log.
type AuditEvent struct {
	ID        int64
	Type      string
	Source    string
	TaskID    string
	RuleID    string
	Payload   string
	CreatedAt time.Time
}

// LogEvent appends one entry to the audit log. Logging failures are the
// caller's problem to ignore; the log is advisory.
func (s *Store) LogEvent(ctx context.Context, eventType, source, taskID, ruleID, payload string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (type, source, task_id, rule_id, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		eventType, source, taskID, ruleID, payload)
	if err != nil {
		return fmt.Errorf("log event %s: %w", eventType, err)
	}
	return nil
}

// RecentEvents returns the newest audit entries, newest first. A zero limit
// defaults to 50.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, source, COALESCE(task_id, ''), COALESCE(rule_id, ''),
		        COALESCE(payload, ''), created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []AuditEvent
	for rows.Next() {
		var ev AuditEvent
		var createdAt sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.Source, &ev.TaskID,
			&ev.RuleID, &ev.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.CreatedAt = parseTime(createdAt)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Notify stores an in-app notification in the outbox.
func (s *Store) Notify(ctx context.Context, n domain.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, message, link, priority)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Type, n.Title, n.Message, n.Link, n.Priority)
	if err != nil {
		return fmt.Errorf("store notification for %s: %w", n.UserID, err)
	}
	return nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count notifications for %s: %w", userID, err)
	}
	return n, nil
}
