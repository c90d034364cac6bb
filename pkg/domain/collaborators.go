package domain

import (
	"context"
	"time"
)

// TaskFields is a partial update applied through TaskStore.Update. Nil
// fields are left untouched.
type TaskFields struct {
	Status          *Status
	Priority        *Priority
	AssigneeID      *string
	Deadline        *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ProgressPercent *int
}

// TaskFilter selects task views for Query. Zero values mean "any".
type TaskFilter struct {
	ProjectID      string
	Statuses       []Status
	Priority       Priority
	DeadlineBefore *time.Time
	DeadlineAfter  *time.Time
	UpdatedBefore  *time.Time
}

// TaskStore is the collaborator that owns task records. The engine reads
// schedule views and requests narrow updates; it never owns task state.
type TaskStore interface {
	Get(ctx context.Context, id string) (*TaskView, error)
	Update(ctx context.Context, id string, fields TaskFields) error
	Query(ctx context.Context, filter TaskFilter) ([]TaskView, error)
	AddComment(ctx context.Context, taskID, userID, text string) error
}

// Notification is an in-app notification delivered through NotificationSink.
type Notification struct {
	UserID   string
	Type     string
	Title    string
	Message  string
	Link     string
	Priority string
}

// NotificationSink delivers in-app notifications. Owned elsewhere.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// ChatMessage is an outbound chat post (Slack-style payload shape).
type ChatMessage struct {
	Channel string            `json:"channel"`
	Text    string            `json:"text"`
	Color   string            `json:"color,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// WebhookRequest is an outbound webhook delivery. If Secret is set the
// payload is signed with HMAC-SHA256 and the signature sent as a header.
type WebhookRequest struct {
	URL     string
	Payload []byte
	Headers map[string]string
	Secret  string
}

// MessagingSink delivers chat messages and webhooks. Deliveries are
// fire-and-forget; the implementation reports delivery status back
// asynchronously (cascade's implementation writes it to the event log).
type MessagingSink interface {
	SendChat(ctx context.Context, msg ChatMessage) error
	SendWebhook(ctx context.Context, req WebhookRequest) error
}

// UserInfo is the directory projection of a user.
type UserInfo struct {
	ID        string
	Name      string
	Email     string
	ManagerID string
}

// UserDirectory resolves user IDs to directory records. Owned elsewhere.
type UserDirectory interface {
	Resolve(ctx context.Context, userID string) (*UserInfo, error)
}
