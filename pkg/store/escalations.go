package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cascade/pkg/domain"
)

// OpenEscalationExists reports whether the task already has a non-terminal
// escalation from the same rule.
func (s *Store) OpenEscalationExists(ctx context.Context, taskID, ruleID string) (bool, error) {
	marks := make([]string, len(domain.OpenEscalationStatuses))
	args := []any{taskID, ruleID}
	for i, st := range domain.OpenEscalationStatuses {
		marks[i] = "?"
		args = append(args, string(st))
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM escalations
		 WHERE task_id = ? AND rule_id = ? AND status IN (`+strings.Join(marks, ", ")+`)`,
		args...).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count open escalations for %s: %w", taskID, err)
	}
	return n > 0, nil
}

// CreateEscalation inserts a new escalation record. The partial unique
// index on open (task, rule) pairs holds the dedup invariant even when
// two workers insert concurrently; the loser gets a
// DuplicateEscalationError.
func (s *Store) CreateEscalation(ctx context.Context, esc *domain.Escalation) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO escalations (id, task_id, rule_id, status, reason,
		     suggested_actions, escalated_to, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		esc.ID, esc.TaskID, esc.RuleID, string(esc.Status), esc.Reason,
		toJSONList(esc.SuggestedActions), toJSONList(esc.EscalatedTo),
		esc.CreatedAt.UTC().Format(timeLayout))
	if isUniqueViolation(err) {
		return &domain.DuplicateEscalationError{TaskID: esc.TaskID, RuleID: esc.RuleID}
	}
	if err != nil {
		return fmt.Errorf("create escalation %s: %w", esc.ID, err)
	}
	return nil
}

// isUniqueViolation matches the driver's UNIQUE constraint errors by
// message; modernc.org/sqlite reports constraint failures as plain
// errors rather than an exported type.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetEscalation returns one escalation by id.
func (s *Store) GetEscalation(ctx context.Context, id string) (*domain.Escalation, error) {
	row := s.db.QueryRowContext(ctx, escalationSelect+` WHERE id = ?`, id)
	esc, err := scanEscalation(row)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "escalation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get escalation %s: %w", id, err)
	}
	return esc, nil
}

// Escalations returns escalations, newest first. An empty status returns
// all of them.
func (s *Store) Escalations(ctx context.Context, status domain.EscalationStatus) ([]domain.Escalation, error) {
	query := escalationSelect
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalations: %w", err)
	}
	defer rows.Close()

	var out []domain.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		out = append(out, *esc)
	}
	return out, rows.Err()
}

// TransitionEscalation moves an escalation to a new status. Transitions run
// forward only: a terminal escalation cannot be reopened, and acknowledged
// cannot move back to pending.
func (s *Store) TransitionEscalation(ctx context.Context, id string, to domain.EscalationStatus, notes string, at time.Time) error {
	esc, err := s.GetEscalation(ctx, id)
	if err != nil {
		return err
	}
	if err := validTransition(esc.Status, to); err != nil {
		return err
	}

	sets := []string{"status = ?"}
	args := []any{string(to)}
	if notes != "" {
		sets = append(sets, "resolution_notes = ?")
		args = append(args, notes)
	}
	stamp := at.UTC().Format(timeLayout)
	switch to {
	case domain.EscalationAcknowledged:
		sets = append(sets, "acknowledged_at = ?")
		args = append(args, stamp)
	case domain.EscalationResolved, domain.EscalationDismissed:
		sets = append(sets, "resolved_at = ?")
		args = append(args, stamp)
	}
	args = append(args, id)

	_, err = s.db.ExecContext(ctx,
		"UPDATE escalations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("transition escalation %s: %w", id, err)
	}
	return nil
}

var escalationOrder = map[domain.EscalationStatus]int{
	domain.EscalationPending:      0,
	domain.EscalationAcknowledged: 1,
	domain.EscalationInProgress:   2,
	domain.EscalationResolved:     3,
}

func validTransition(from, to domain.EscalationStatus) error {
	if from.Terminal() {
		return fmt.Errorf("escalation is already %s", from)
	}
	if to == domain.EscalationDismissed {
		return nil
	}
	fromRank, ok1 := escalationOrder[from]
	toRank, ok2 := escalationOrder[to]
	if !ok1 || !ok2 || toRank <= fromRank {
		return fmt.Errorf("cannot move escalation from %s to %s", from, to)
	}
	return nil
}

const escalationSelect = `SELECT id, task_id, rule_id, status, reason,
    suggested_actions, escalated_to, resolution_notes,
    created_at, acknowledged_at, resolved_at
 FROM escalations`

func scanEscalation(row rowScanner) (*domain.Escalation, error) {
	var esc domain.Escalation
	var status, suggested, escalatedTo string
	var createdAt, acknowledgedAt, resolvedAt sql.NullString
	err := row.Scan(&esc.ID, &esc.TaskID, &esc.RuleID, &status, &esc.Reason,
		&suggested, &escalatedTo, &esc.ResolutionNotes,
		&createdAt, &acknowledgedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	esc.Status = domain.EscalationStatus(status)
	if err := json.Unmarshal([]byte(suggested), &esc.SuggestedActions); err != nil {
		return nil, fmt.Errorf("escalation %s suggested_actions: %w", esc.ID, err)
	}
	if err := json.Unmarshal([]byte(escalatedTo), &esc.EscalatedTo); err != nil {
		return nil, fmt.Errorf("escalation %s escalated_to: %w", esc.ID, err)
	}
	esc.CreatedAt = parseTime(createdAt)
	esc.AcknowledgedAt = parseTimePtr(acknowledgedAt)
	esc.ResolvedAt = parseTimePtr(resolvedAt)
	return &esc, nil
}

func toJSONList(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}
