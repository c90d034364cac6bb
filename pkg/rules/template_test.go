package rules

import (
	"testing"

	"cascade/pkg/domain"
)

func TestRender(t *testing.T) {
	c := evalContext()
	c.Assignee = &domain.UserInfo{ID: "u-dev", Name: "Dana"}

	got := Render("{{task_title}} ({{task_priority}}) assigned to {{assignee_name}} in {{project_name}}", c)
	want := "Migrate billing database (urgent) assigned to Dana in p1"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestRenderTimestampAndUser(t *testing.T) {
	got := Render("{{user_name}} at {{timestamp}}", evalContext())
	if got != "Lee at 2025-03-10 14:30" {
		t.Errorf("got %q", got)
	}
}

func TestRenderUnassignedFallback(t *testing.T) {
	c := evalContext()
	c.Task.AssigneeID = ""
	if got := Render("{{assignee_name}}", c); got != "Unassigned" {
		t.Errorf("got %q, want Unassigned", got)
	}
}

func TestRenderAssigneeIDFallback(t *testing.T) {
	// Directory lookup failed but the task has an assignee: fall back to
	// the raw ID rather than claiming the task is unassigned.
	c := evalContext()
	if got := Render("{{assignee_name}}", c); got != "u-dev" {
		t.Errorf("got %q, want u-dev", got)
	}
}

func TestRenderUnknownPlaceholderLeftAlone(t *testing.T) {
	if got := Render("{{mystery}}", evalContext()); got != "{{mystery}}" {
		t.Errorf("got %q", got)
	}
}
