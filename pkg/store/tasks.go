package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cascade/pkg/domain"
)

const timeLayout = time.RFC3339

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		// Rows written by SQLite defaults use datetime('now') format.
		t, err = time.Parse("2006-01-02 15:04:05", ns.String)
		if err != nil {
			return nil
		}
		t = t.UTC()
	}
	return &t
}

func parseTime(ns sql.NullString) time.Time {
	if t := parseTimePtr(ns); t != nil {
		return *t
	}
	return time.Time{}
}

// UpsertTask inserts or replaces a task projection. Used by the import
// path and by external sync; engine-side mutations go through Update.
func (s *Store) UpsertTask(ctx context.Context, t *domain.TaskView) error {
	now := time.Now().UTC().Format(timeLayout)
	created := t.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, project_id, status, priority, assignee_id,
		     creator_id, progress_percent, started_at, completed_at, deadline,
		     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     title=excluded.title, project_id=excluded.project_id,
		     status=excluded.status, priority=excluded.priority,
		     assignee_id=excluded.assignee_id, creator_id=excluded.creator_id,
		     progress_percent=excluded.progress_percent,
		     started_at=excluded.started_at, completed_at=excluded.completed_at,
		     deadline=excluded.deadline, updated_at=excluded.updated_at`,
		t.ID, t.Title, t.ProjectID, string(t.Status), string(t.Priority),
		t.AssigneeID, t.CreatorID, t.ProgressPercent,
		fmtTimePtr(t.StartedAt), fmtTimePtr(t.CompletedAt), fmtTimePtr(t.Deadline),
		created.UTC().Format(timeLayout), now,
	)
	if err != nil {
		return fmt.Errorf("upsert task %s: %w", t.ID, err)
	}
	return nil
}

// Get returns the task projection for id.
func (s *Store) Get(ctx context.Context, id string) (*domain.TaskView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, project_id, status, priority, assignee_id, creator_id,
		        progress_percent, started_at, completed_at, deadline,
		        created_at, updated_at
		 FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "task", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// Update applies a partial update. Nil fields are left untouched;
// updated_at is always stamped.
func (s *Store) Update(ctx context.Context, id string, fields domain.TaskFields) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(timeLayout)}

	if fields.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*fields.Status))
	}
	if fields.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*fields.Priority))
	}
	if fields.AssigneeID != nil {
		sets = append(sets, "assignee_id = ?")
		args = append(args, *fields.AssigneeID)
	}
	if fields.Deadline != nil {
		sets = append(sets, "deadline = ?")
		args = append(args, fmtTimePtr(fields.Deadline))
	}
	if fields.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, fmtTimePtr(fields.StartedAt))
	}
	if fields.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, fmtTimePtr(fields.CompletedAt))
	}
	if fields.ProgressPercent != nil {
		sets = append(sets, "progress_percent = ?")
		args = append(args, *fields.ProgressPercent)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n == 0 {
		return &domain.NotFoundError{Kind: "task", ID: id}
	}
	return nil
}

// Query returns task projections matching the filter, ordered by id.
func (s *Store) Query(ctx context.Context, filter domain.TaskFilter) ([]domain.TaskView, error) {
	where := []string{"1=1"}
	var args []any

	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.DeadlineBefore != nil {
		where = append(where, "deadline IS NOT NULL AND deadline <= ?")
		args = append(args, fmtTimePtr(filter.DeadlineBefore))
	}
	if filter.DeadlineAfter != nil {
		where = append(where, "deadline IS NOT NULL AND deadline >= ?")
		args = append(args, fmtTimePtr(filter.DeadlineAfter))
	}
	if filter.UpdatedBefore != nil {
		where = append(where, "updated_at <= ?")
		args = append(args, fmtTimePtr(filter.UpdatedBefore))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, project_id, status, priority, assignee_id, creator_id,
		        progress_percent, started_at, completed_at, deadline,
		        created_at, updated_at
		 FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskView
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// AddComment appends a comment to the task's thread. An empty userID is
// recorded as the system author.
func (s *Store) AddComment(ctx context.Context, taskID, userID, text string) error {
	if userID == "" {
		userID = "system"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_comments (task_id, user_id, body) VALUES (?, ?, ?)`,
		taskID, userID, text)
	if err != nil {
		return fmt.Errorf("add comment to %s: %w", taskID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.TaskView, error) {
	var t domain.TaskView
	var status, priority string
	var startedAt, completedAt, deadline, createdAt, updatedAt sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.ProjectID, &status, &priority,
		&t.AssigneeID, &t.CreatorID, &t.ProgressPercent,
		&startedAt, &completedAt, &deadline, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	t.StartedAt = parseTimePtr(startedAt)
	t.CompletedAt = parseTimePtr(completedAt)
	t.Deadline = parseTimePtr(deadline)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
