// Package notify delivers user notifications emitted by the scoring engine.
//
// Delivery is fire-and-forget relative to the computations that emit it: a
// failed send is counted and logged, never propagated to the caller.
package notify

import (
	"context"
	"time"
)

// Type identifies the kind of notification.
type Type string

const (
	TypeAssessmentCompleted Type = "risk_assessment_completed"
	TypeAssessmentUpdated   Type = "risk_assessment_updated"
	TypeHighRiskAlert       Type = "high_risk_investment_alert"
	TypeReputationChanged   Type = "reputation_changed"
)

// Priority orders notifications for the receiving channel.
type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Notification is one message for one recipient.
type Notification struct {
	ID        string                 `json:"id"`
	Recipient string                 `json:"recipient"`
	Type      Type                   `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Category  string                 `json:"category"`
	Priority  Priority               `json:"priority"`
	Data      map[string]interface{} `json:"data,omitempty"`
	ActionURL string                 `json:"actionUrl,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Sink accepts notifications for delivery.
type Sink interface {
	Send(ctx context.Context, n *Notification) error
}
