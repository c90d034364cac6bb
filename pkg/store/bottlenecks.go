package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cascade/pkg/domain"
)

// UpsertOpen records a bottleneck finding stamped with the analyzer's
// clock. If the task already has an unresolved finding it is updated in
// place, so repeated analysis never produces duplicate open rows.
func (s *Store) UpsertOpen(ctx context.Context, b *domain.Bottleneck, at time.Time) error {
	now := at.UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE bottlenecks
		 SET severity = ?, blocking_count = ?, cascade_delay_days = ?,
		     delay_probability = ?, suggested_actions = ?, updated_at = ?
		 WHERE task_id = ? AND is_resolved = 0`,
		string(b.Severity), b.BlockingCount, b.CascadeDelayDays,
		b.DelayProbability, toJSONList(b.SuggestedActions), now, b.TaskID)
	if err != nil {
		return fmt.Errorf("update bottleneck for %s: %w", b.TaskID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bottlenecks (task_id, severity, blocking_count,
		     cascade_delay_days, delay_probability, suggested_actions,
		     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.TaskID, string(b.Severity), b.BlockingCount, b.CascadeDelayDays,
		b.DelayProbability, toJSONList(b.SuggestedActions), now, now)
	if err != nil {
		return fmt.Errorf("insert bottleneck for %s: %w", b.TaskID, err)
	}
	return nil
}

// ResolveBottleneck closes the task's open bottleneck finding, if any.
func (s *Store) ResolveBottleneck(ctx context.Context, taskID string, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE bottlenecks SET is_resolved = 1, updated_at = ?
		 WHERE task_id = ? AND is_resolved = 0`,
		resolvedAt.UTC().Format(timeLayout), taskID)
	if err != nil {
		return fmt.Errorf("resolve bottleneck for %s: %w", taskID, err)
	}
	return nil
}

// OpenBottlenecks returns unresolved findings, most severe first.
func (s *Store) OpenBottlenecks(ctx context.Context) ([]domain.Bottleneck, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, severity, blocking_count, cascade_delay_days,
		        delay_probability, suggested_actions, is_resolved,
		        created_at, updated_at
		 FROM bottlenecks WHERE is_resolved = 0
		 ORDER BY CASE severity
		     WHEN 'critical' THEN 0 WHEN 'high' THEN 1
		     WHEN 'medium' THEN 2 ELSE 3 END,
		     cascade_delay_days DESC, task_id`)
	if err != nil {
		return nil, fmt.Errorf("query bottlenecks: %w", err)
	}
	defer rows.Close()

	var out []domain.Bottleneck
	for rows.Next() {
		var b domain.Bottleneck
		var severity, suggested string
		var resolved int
		var createdAt, updatedAt sql.NullString
		if err := rows.Scan(&b.ID, &b.TaskID, &severity, &b.BlockingCount,
			&b.CascadeDelayDays, &b.DelayProbability, &suggested,
			&resolved, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan bottleneck: %w", err)
		}
		b.Severity = domain.Severity(severity)
		b.IsResolved = resolved != 0
		if err := json.Unmarshal([]byte(suggested), &b.SuggestedActions); err != nil {
			return nil, fmt.Errorf("bottleneck %d suggested_actions: %w", b.ID, err)
		}
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = parseTime(updatedAt)
		out = append(out, b)
	}
	return out, rows.Err()
}
