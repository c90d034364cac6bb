package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cascade/pkg/domain"
)

// ActionFunc runs one configured action within an execution. Side effects
// taken before an error are not rolled back.
type ActionFunc func(ctx context.Context, action Action, ec *Context, exec *Execution) error

func (e *Engine) builtinActions() map[string]ActionFunc {
	return map[string]ActionFunc{
		"send_notification":      e.actionSendNotification,
		"send_chat":              e.actionSendChat,
		"send_webhook":           e.actionSendWebhook,
		"update_task_status":     e.actionUpdateTaskStatus,
		"update_task_priority":   e.actionUpdateTaskPriority,
		"assign_task":            e.actionAssignTask,
		"add_comment":            e.actionAddComment,
		"update_dependent_tasks": e.actionUpdateDependentTasks,
		"recalculate_timeline":   e.actionRecalculateTimeline,
		"escalate_to_manager":    e.actionEscalateToManager,
		"create_escalation":      e.actionCreateEscalation,
	}
}

// resolveRecipients expands the recipient selectors in cfg to a deduplicated
// user ID list, in selector order.
func (e *Engine) resolveRecipients(ctx context.Context, cfg map[string]any, ec *Context) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if cfgBool(cfg, "notify_assignee", false) && ec.Task != nil {
		add(ec.Task.AssigneeID)
	}
	if cfgBool(cfg, "notify_creator", false) && ec.Task != nil {
		add(ec.Task.CreatorID)
	}
	if cfgBool(cfg, "notify_manager", false) {
		if mgr := e.lookupManager(ctx, ec); mgr != "" {
			add(mgr)
		}
	}
	for _, id := range cfgStrings(cfg, "user_ids") {
		add(id)
	}
	return ids
}

// lookupManager finds the manager of the task's assignee, falling back to
// the creator's manager when the task is unassigned.
func (e *Engine) lookupManager(ctx context.Context, ec *Context) string {
	if e.users == nil || ec.Task == nil {
		return ""
	}
	for _, userID := range []string{ec.Task.AssigneeID, ec.Task.CreatorID} {
		if userID == "" {
			continue
		}
		info, err := e.users.Resolve(ctx, userID)
		if err != nil || info == nil {
			continue
		}
		if info.ManagerID != "" {
			return info.ManagerID
		}
	}
	return ""
}

// actionSendNotification delivers a rendered in-app notification to each
// resolved recipient. No recipients is a successful no-op.
func (e *Engine) actionSendNotification(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if e.notify == nil {
		return fmt.Errorf("no notification sink configured")
	}
	recipients := e.resolveRecipients(ctx, action.Config, ec)
	if len(recipients) == 0 {
		exec.ResultData["notification_recipients"] = 0
		return nil
	}

	title := Render(cfgStringDefault(action.Config, "title", "Task update"), ec)
	message := Render(cfgStringDefault(action.Config, "message", "{{task_title}} was updated"), ec)
	link := ""
	if ec.Task != nil {
		link = "/tasks/" + ec.Task.ID
	}

	var failed int
	for _, userID := range recipients {
		n := domain.Notification{
			UserID:   userID,
			Type:     "automation",
			Title:    title,
			Message:  message,
			Link:     link,
			Priority: cfgStringDefault(action.Config, "priority", "normal"),
		}
		if err := e.notify.Notify(ctx, n); err != nil {
			failed++
		}
	}
	exec.ResultData["notification_recipients"] = len(recipients)
	if failed > 0 {
		return fmt.Errorf("%d of %d notifications failed", failed, len(recipients))
	}
	return nil
}

// actionSendChat posts a rendered message to a chat channel, colored by the
// task's priority.
func (e *Engine) actionSendChat(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if e.messaging == nil {
		return fmt.Errorf("no messaging sink configured")
	}
	channel, err := cfgString(action.Config, "channel")
	if err != nil {
		return err
	}

	msg := domain.ChatMessage{
		Channel: channel,
		Text:    Render(cfgStringDefault(action.Config, "message", "{{task_title}}: {{task_status}}"), ec),
	}
	if ec.Task != nil {
		msg.Color = domain.PriorityColor(ec.Task.Priority)
		msg.Fields = map[string]string{
			"Status":   string(ec.Task.Status),
			"Priority": string(ec.Task.Priority),
		}
		if ec.Assignee != nil {
			msg.Fields["Assignee"] = ec.Assignee.Name
		}
	}
	if err := e.messaging.SendChat(ctx, msg); err != nil {
		return fmt.Errorf("send chat: %w", err)
	}
	exec.ResultData["chat_channel"] = channel
	return nil
}

// actionSendWebhook POSTs an event payload to the configured URL. The body
// is signed when a secret is configured.
func (e *Engine) actionSendWebhook(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if e.messaging == nil {
		return fmt.Errorf("no messaging sink configured")
	}
	url, err := cfgString(action.Config, "url")
	if err != nil {
		return err
	}

	payload := map[string]any{
		"event":     string(ec.Event.Type),
		"timestamp": ec.Now.Format(time.RFC3339),
	}
	if ec.Task != nil {
		payload["task"] = map[string]any{
			"id":       ec.Task.ID,
			"title":    ec.Task.Title,
			"status":   string(ec.Task.Status),
			"priority": string(ec.Task.Priority),
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req := domain.WebhookRequest{
		URL:     url,
		Payload: body,
		Secret:  cfgStringDefault(action.Config, "secret", ""),
	}
	if err := e.messaging.SendWebhook(ctx, req); err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	exec.ResultData["webhook_url"] = url
	return nil
}

// actionUpdateTaskStatus transitions the task and stamps the lifecycle
// timestamps the transition implies.
func (e *Engine) actionUpdateTaskStatus(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	raw, err := cfgString(action.Config, "status")
	if err != nil {
		return err
	}
	status := domain.Status(raw)
	if !status.Valid() {
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown status %q", raw)}
	}
	if ec.Task.Status == status {
		return nil
	}

	now := e.nowFunc()
	fields := domain.TaskFields{Status: &status}
	if status == domain.StatusCompleted {
		fields.CompletedAt = &now
	}
	if status == domain.StatusInProgress && ec.Task.StartedAt == nil {
		fields.StartedAt = &now
	}
	if err := e.tasks.Update(ctx, ec.Task.ID, fields); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	exec.ResultData["status_changed_to"] = raw
	return nil
}

func (e *Engine) actionUpdateTaskPriority(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	raw, err := cfgString(action.Config, "priority")
	if err != nil {
		return err
	}
	priority := domain.Priority(raw)
	if !priority.Valid() {
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown priority %q", raw)}
	}
	if ec.Task.Priority == priority {
		return nil
	}
	if err := e.tasks.Update(ctx, ec.Task.ID, domain.TaskFields{Priority: &priority}); err != nil {
		return fmt.Errorf("update priority: %w", err)
	}
	exec.ResultData["priority_changed_to"] = raw
	return nil
}

func (e *Engine) actionAssignTask(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	assignee, err := cfgString(action.Config, "assignee_id")
	if err != nil {
		return err
	}
	if ec.Task.AssigneeID == assignee {
		return nil
	}
	if err := e.tasks.Update(ctx, ec.Task.ID, domain.TaskFields{AssigneeID: &assignee}); err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	exec.ResultData["assigned_to"] = assignee
	return nil
}

func (e *Engine) actionAddComment(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	tmpl, err := cfgString(action.Config, "comment")
	if err != nil {
		return err
	}
	body := Render(tmpl, ec)
	if err := e.tasks.AddComment(ctx, ec.Task.ID, ec.Event.UserID, body); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

// actionUpdateDependentTasks moves finish_to_start successors of the task
// to a new status, typically unblocking them when the task completes. Only
// blocked successors move unless force_update is set.
func (e *Engine) actionUpdateDependentTasks(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	if e.graph == nil {
		return fmt.Errorf("no dependency graph configured")
	}
	newStatus := domain.Status(cfgStringDefault(action.Config, "new_status", string(domain.StatusOpen)))
	if !newStatus.Valid() {
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown status %q", newStatus)}
	}
	force := cfgBool(action.Config, "force_update", false)

	var updated int
	for _, edge := range e.graph.Successors(ec.Task.ID) {
		if edge.Type != domain.FinishToStart {
			continue
		}
		succ, err := e.tasks.Get(ctx, edge.SuccessorID)
		if err != nil {
			continue
		}
		if !force && succ.Status != domain.StatusBlocked {
			continue
		}
		if succ.Status == newStatus || succ.Status.Terminal() {
			continue
		}
		status := newStatus
		if err := e.tasks.Update(ctx, succ.ID, domain.TaskFields{Status: &status}); err != nil {
			return fmt.Errorf("update dependent %s: %w", succ.ID, err)
		}
		updated++
	}
	exec.ResultData["dependents_updated"] = updated
	return nil
}

func (e *Engine) actionRecalculateTimeline(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	if e.timeline == nil {
		return fmt.Errorf("no timeline engine configured")
	}
	adjusted, err := e.timeline.PropagateFrom(ctx, ec.Task.ID)
	if err != nil {
		return fmt.Errorf("recalculate timeline: %w", err)
	}
	exec.ResultData["deadlines_adjusted"] = len(adjusted)
	return nil
}

// actionEscalateToManager opens an escalation addressed to the assignee's
// manager (or the creator's, when unassigned) and notifies them.
func (e *Engine) actionEscalateToManager(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	manager := e.lookupManager(ctx, ec)
	if manager == "" {
		exec.ResultData["escalation"] = "no manager found"
		return nil
	}
	reason := Render(cfgStringDefault(action.Config, "reason", "Task {{task_title}} requires attention"), ec)
	created, err := e.createEscalation(ctx, exec, ec.Task.ID, exec.RuleID, manager, reason)
	if err != nil || !created {
		return err
	}
	if e.notify != nil {
		_ = e.notify.Notify(ctx, domain.Notification{
			UserID:   manager,
			Type:     "escalation",
			Title:    "Escalation: " + ec.Task.Title,
			Message:  reason,
			Link:     "/tasks/" + ec.Task.ID,
			Priority: "high",
		})
	}
	return nil
}

// actionCreateEscalation opens an escalation for an explicitly configured
// user, falling back to the manager chain when none is given.
func (e *Engine) actionCreateEscalation(ctx context.Context, action Action, ec *Context, exec *Execution) error {
	if ec.Task == nil {
		return fmt.Errorf("no task in scope")
	}
	target := cfgStringDefault(action.Config, "escalate_to", "")
	if target == "" {
		target = e.lookupManager(ctx, ec)
	}
	if target == "" {
		exec.ResultData["escalation"] = "no target user"
		return nil
	}
	reason := Render(cfgStringDefault(action.Config, "reason", "Escalation for {{task_title}}"), ec)
	_, err := e.createEscalation(ctx, exec, ec.Task.ID, exec.RuleID, target, reason)
	return err
}

// createEscalation persists an escalation unless one is already open for the
// same task and rule. Returns whether a new record was created.
//
// The existence check is a fast path; two workers can both pass it, so
// the store's insert must reject the second open record itself.
func (e *Engine) createEscalation(ctx context.Context, exec *Execution, taskID, ruleID, targetUser, reason string) (bool, error) {
	if e.escalations == nil {
		return false, fmt.Errorf("no escalation store configured")
	}
	open, err := e.escalations.OpenEscalationExists(ctx, taskID, ruleID)
	if err != nil {
		return false, fmt.Errorf("check open escalations: %w", err)
	}
	if open {
		exec.ResultData["escalation"] = "deduplicated"
		e.log(ctx, "escalation_deduped", taskID, ruleID, targetUser)
		return false, nil
	}
	esc := &domain.Escalation{
		ID:          uuid.New().String(),
		TaskID:      taskID,
		RuleID:      ruleID,
		EscalatedTo: []string{targetUser},
		Reason:      reason,
		Status:      domain.EscalationPending,
		CreatedAt:   e.nowFunc(),
	}
	if err := e.escalations.CreateEscalation(ctx, esc); err != nil {
		var dup *domain.DuplicateEscalationError
		if errors.As(err, &dup) {
			exec.ResultData["escalation"] = "deduplicated"
			e.log(ctx, "escalation_deduped", taskID, ruleID, targetUser)
			return false, nil
		}
		return false, fmt.Errorf("create escalation: %w", err)
	}
	exec.ResultData["escalation_id"] = esc.ID
	return true, nil
}
