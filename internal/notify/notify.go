// Package notify translates domain events into user-facing notifications,
// gates them through per-category quiet hours, and maintains the durable
// deferred queue that collapses into a digest when a quiet window ends.
package notify

import (
	"context"
)

// Notification categories. A small fixed set, not a generic event bus.
const (
	CategoryDownloads     = "downloads"
	CategoryRequests      = "requests"
	CategoryServiceHealth = "service_health"
)

// Categories lists every known notification category.
func Categories() []string {
	return []string{CategoryDownloads, CategoryRequests, CategoryServiceHealth}
}

// Message is the unit handed to the push transport.
type Message struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Category string            `json:"category"`
	Data     map[string]string `json:"data,omitempty"`
}

// Pusher is the push-transport seam. Fire-and-forget from the pipeline's
// perspective: errors are caught and logged, never propagated.
type Pusher interface {
	Push(ctx context.Context, msg *Message) error
}

// Outcome reports how DeliverNotification handled a message.
type Outcome string

const (
	Delivered Outcome = "delivered"
	Deferred  Outcome = "deferred"
)
