package service

import (
	"time"

	apperrors "datasync/pkg/errors"
	"datasync/pkg/models"

	"github.com/google/uuid"
)

// Event describes a finished sync, undo or init for live subscribers.
type Event struct {
	ID        string           `json:"id"`
	Operation models.Operation `json:"operation"`
	Success   bool             `json:"success"`
	Kind      apperrors.Kind   `json:"error,omitempty"`
	Message   string           `json:"message"`
	Warning   string           `json:"warning,omitempty"`
	Trigger   string           `json:"trigger"` // "manual" or "schedule"
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher receives events. Publish must not block.
type Publisher interface {
	Publish(Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

func newEvent(op models.Operation, out *models.Outcome, trigger string) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Operation: op,
		Trigger:   trigger,
		Timestamp: time.Now().UTC(),
	}
	if out != nil {
		ev.Success = out.Success
		ev.Kind = out.Kind
		ev.Message = out.Message
		ev.Warning = out.Warning
	}
	return ev
}
