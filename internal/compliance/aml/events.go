package aml

import (
	"context"
	"time"

	"github.com/Aidin1998/amlwatch/pkg/metrics"
	"go.uber.org/zap"
)

// EventType names a lifecycle event
type EventType string

const (
	EventActivityFlagged       EventType = "aml.activity.flagged"
	EventActivityStatusChanged EventType = "aml.activity.status_changed"
	EventSarFiled              EventType = "aml.sar.filed"
)

// Event is published after a state change is durably stored
type Event struct {
	Type           EventType      `json:"type"`
	ActivityID     string         `json:"activity_id"`
	UserID         string         `json:"user_id"`
	Reason         ActivityReason `json:"reason"`
	Status         ActivityStatus `json:"status"`
	PreviousStatus ActivityStatus `json:"previous_status,omitempty"`
	RiskScore      int            `json:"risk_score"`
	SarReference   string         `json:"sar_reference,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// NewActivityEvent builds an event describing the current state of a
func NewActivityEvent(t EventType, a *SuspiciousActivity, at time.Time) Event {
	ev := Event{
		Type:       t,
		ActivityID: a.ID,
		UserID:     a.UserID,
		Reason:     a.Reason,
		Status:     a.Status,
		RiskScore:  a.RiskScore,
		OccurredAt: at,
	}
	if a.SarReference != nil {
		ev.SarReference = *a.SarReference
	}
	return ev
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// PublishBestEffort hands an event to the bus. The state change it describes
// is already durable, so failures are logged and counted, never returned.
func PublishBestEffort(ctx context.Context, p EventPublisher, ev Event, logger *zap.Logger) {
	if err := p.Publish(ctx, ev); err != nil {
		metrics.EventsPublished.WithLabelValues(string(ev.Type), "error").Inc()
		logger.Warn("failed to publish event",
			zap.String("type", string(ev.Type)),
			zap.String("activity_id", ev.ActivityID),
			zap.Error(err))
		return
	}
	metrics.EventsPublished.WithLabelValues(string(ev.Type), "ok").Inc()
}
