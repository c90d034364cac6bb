package rules

import "strings"

// Render substitutes {{placeholder}} tokens in a message template from the
// evaluation context. Missing values render as empty strings ("Unassigned"
// for the assignee, matching the notification copy users see elsewhere);
// rendering never fails.
func Render(template string, c *Context) string {
	if template == "" {
		return ""
	}

	assignee := "Unassigned"
	switch {
	case c.Assignee != nil && c.Assignee.Name != "":
		assignee = c.Assignee.Name
	case c.Task != nil && c.Task.AssigneeID != "":
		assignee = c.Task.AssigneeID
	}
	userName := ""
	if c.User != nil {
		userName = c.User.Name
	}

	pairs := []string{
		"{{task_title}}", c.Field("task_title"),
		"{{task_status}}", c.Field("task_status"),
		"{{task_priority}}", c.Field("task_priority"),
		"{{task_deadline}}", c.Field("task_deadline"),
		"{{assignee_name}}", assignee,
		"{{project_name}}", c.Field("project_id"),
		"{{user_name}}", userName,
		"{{timestamp}}", c.Now.Format("2006-01-02 15:04"),
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
