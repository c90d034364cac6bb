package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cascade/pkg/domain"
	"cascade/pkg/rules"
)

func toJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ReplaceRules swaps the stored rule set for the given one, preserving
// execution stats for rules whose id survives the reload. Runs in one
// transaction so readers never observe a partial rule set.
func (s *Store) ReplaceRules(ctx context.Context, ruleSet []rules.Rule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace rules: %w", err)
	}
	defer tx.Rollback()

	type stats struct {
		count int
		last  sql.NullString
	}
	prior := map[string]stats{}
	rows, err := tx.QueryContext(ctx, `SELECT id, execution_count, last_executed_at FROM rules`)
	if err != nil {
		return fmt.Errorf("read rule stats: %w", err)
	}
	for rows.Next() {
		var id string
		var st stats
		if err := rows.Scan(&id, &st.count, &st.last); err != nil {
			rows.Close()
			return fmt.Errorf("scan rule stats: %w", err)
		}
		prior[id] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read rule stats: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}
	for i := range ruleSet {
		r := &ruleSet[i]
		active := 0
		if r.Active {
			active = 1
		}
		st := prior[r.ID]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rules (id, name, trigger_type, trigger_config,
			     project_filter, active, conditions, actions,
			     execution_count, last_executed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.Name, string(r.TriggerType), toJSON(r.TriggerConfig),
			r.ProjectFilter, active, toJSON(r.Conditions), toJSON(r.Actions),
			st.count, st.last)
		if err != nil {
			return fmt.Errorf("insert rule %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ActiveRules returns the active rules, ordered by name.
func (s *Store) ActiveRules(ctx context.Context) ([]rules.Rule, error) {
	return s.queryRules(ctx, `WHERE active = 1`)
}

// AllRules returns every stored rule, active or not.
func (s *Store) AllRules(ctx context.Context) ([]rules.Rule, error) {
	return s.queryRules(ctx, ``)
}

func (s *Store) queryRules(ctx context.Context, where string) ([]rules.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, trigger_type, trigger_config, project_filter, active,
		        conditions, actions, execution_count, last_executed_at
		 FROM rules `+where+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		var r rules.Rule
		var trigger, triggerConfig, conditions, actions string
		var active int
		var lastExecuted sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &trigger, &triggerConfig,
			&r.ProjectFilter, &active, &conditions, &actions,
			&r.ExecutionCount, &lastExecuted); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.TriggerType = domain.EventType(trigger)
		r.Active = active != 0
		if err := json.Unmarshal([]byte(triggerConfig), &r.TriggerConfig); err != nil {
			return nil, fmt.Errorf("rule %s trigger_config: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(conditions), &r.Conditions); err != nil {
			return nil, fmt.Errorf("rule %s conditions: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(actions), &r.Actions); err != nil {
			return nil, fmt.Errorf("rule %s actions: %w", r.ID, err)
		}
		r.LastExecutedAt = parseTimePtr(lastExecuted)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateExecution inserts a new execution record.
func (s *Store) CreateExecution(ctx context.Context, exec *rules.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rule_executions (id, rule_id, status, trigger_context,
		     result_data, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.RuleID, string(exec.Status),
		toJSON(exec.TriggerContext), toJSON(exec.ResultData),
		exec.StartedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create execution %s: %w", exec.ID, err)
	}
	return nil
}

// UpdateExecution writes the execution's current status and result data.
func (s *Store) UpdateExecution(ctx context.Context, exec *rules.Execution) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rule_executions SET status = ?, result_data = ?, completed_at = ?
		 WHERE id = ?`,
		string(exec.Status), toJSON(exec.ResultData),
		fmtTimePtr(exec.CompletedAt), exec.ID)
	if err != nil {
		return fmt.Errorf("update execution %s: %w", exec.ID, err)
	}
	return nil
}

// TouchRule increments the rule's execution count and stamps the time of
// its latest run.
func (s *Store) TouchRule(ctx context.Context, ruleID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rules SET execution_count = execution_count + 1, last_executed_at = ?
		 WHERE id = ?`,
		at.UTC().Format(timeLayout), ruleID)
	if err != nil {
		return fmt.Errorf("touch rule %s: %w", ruleID, err)
	}
	return nil
}

// GetExecution returns one execution record by id.
func (s *Store) GetExecution(ctx context.Context, id string) (*rules.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, rule_id, status, trigger_context, result_data,
		        started_at, completed_at
		 FROM rule_executions WHERE id = ?`, id)

	var exec rules.Execution
	var status, triggerContext, resultData string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&exec.ID, &exec.RuleID, &status, &triggerContext,
		&resultData, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, &domain.NotFoundError{Kind: "execution", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", id, err)
	}
	exec.Status = rules.ExecStatus(status)
	if err := json.Unmarshal([]byte(triggerContext), &exec.TriggerContext); err != nil {
		return nil, fmt.Errorf("execution %s trigger_context: %w", id, err)
	}
	if err := json.Unmarshal([]byte(resultData), &exec.ResultData); err != nil {
		return nil, fmt.Errorf("execution %s result_data: %w", id, err)
	}
	exec.StartedAt = parseTime(startedAt)
	exec.CompletedAt = parseTimePtr(completedAt)
	return &exec, nil
}
