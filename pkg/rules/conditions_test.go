package rules

import (
	"errors"
	"testing"
	"time"

	"cascade/pkg/domain"
)

func evalContext() *Context {
	deadline := time.Date(2025, 3, 14, 17, 0, 0, 0, time.UTC)
	return &Context{
		Event: domain.Event{
			Type:      domain.EventTaskStatusChange,
			TaskID:    "t1",
			ProjectID: "p1",
			OldStatus: domain.StatusOpen,
			NewStatus: domain.StatusBlocked,
		},
		Task: &domain.TaskView{
			ID: "t1", Title: "Migrate billing database", ProjectID: "p1",
			Status: domain.StatusBlocked, Priority: domain.PriorityUrgent,
			AssigneeID: "u-dev", Deadline: &deadline,
		},
		User: &domain.UserInfo{ID: "u-lead", Name: "Lee", ManagerID: "u-mgr"},
		Now:  time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
	}
}

func TestConditions(t *testing.T) {
	tests := []struct {
		name     string
		condType string
		cfg      map[string]any
		want     bool
	}{
		{"field_equals match", "field_equals",
			map[string]any{"field": "task_status", "value": "blocked"}, true},
		{"field_equals mismatch", "field_equals",
			map[string]any{"field": "task_status", "value": "open"}, false},
		{"field_equals event field", "field_equals",
			map[string]any{"field": "old_status", "value": "open"}, true},
		{"field_contains", "field_contains",
			map[string]any{"field": "task_title", "value": "billing"}, true},
		{"field_contains miss", "field_contains",
			map[string]any{"field": "task_title", "value": "frontend"}, false},
		{"field_in_list", "field_in_list",
			map[string]any{"field": "task_priority", "values": []any{"high", "urgent"}}, true},
		{"field_in_list miss", "field_in_list",
			map[string]any{"field": "task_priority", "values": []any{"low"}}, false},
		{"user_role member", "user_role",
			map[string]any{"roles": []any{"member"}}, true},
		{"user_role manager miss", "user_role",
			map[string]any{"roles": []any{"manager"}}, false},
		{"time_range inside", "time_range",
			map[string]any{"start_hour": 9, "end_hour": 18}, true},
		{"time_range outside", "time_range",
			map[string]any{"start_hour": 0, "end_hour": 9}, false},
	}

	conds := builtinConditions()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := conds[tt.condType]
			if !ok {
				t.Fatalf("condition %q not registered", tt.condType)
			}
			got, err := fn(tt.cfg, evalContext())
			if err != nil {
				t.Fatalf("eval: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFieldEqualsMissingFieldConfig(t *testing.T) {
	fn := builtinConditions()["field_equals"]
	_, err := fn(map[string]any{"value": "open"}, evalContext())
	var cfgErr *domain.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestUserRoleManagerHeuristic(t *testing.T) {
	c := evalContext()
	c.User = &domain.UserInfo{ID: "u-mgr", Name: "Morgan"}
	fn := builtinConditions()["user_role"]
	got, err := fn(map[string]any{"roles": []any{"manager"}}, c)
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if !got {
		t.Errorf("user with no manager should count as manager")
	}
}

func TestCfgStringsCoercion(t *testing.T) {
	got := cfgStrings(map[string]any{"values": []any{"a", 2, true}}, "values")
	want := []string{"a", "2", "true"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
