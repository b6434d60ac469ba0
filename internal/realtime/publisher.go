package realtime

import (
	"context"
	"errors"

	"github.com/charlesng35/notistore/internal/changefeed"
)

var errMissingOwner = errors.New("realtime: change event has no owner")

// ChangePublisher delivers change events to the websocket connections of the row owner only.
type ChangePublisher struct {
	hub *Hub
}

// NewChangePublisher binds a changefeed sink to hub.
func NewChangePublisher(hub *Hub) *ChangePublisher {
	return &ChangePublisher{hub: hub}
}

// Publish implements changefeed.Publisher. An owner without open connections is not an error.
func (p *ChangePublisher) Publish(_ context.Context, event changefeed.Event) error {
	if p == nil || p.hub == nil {
		return nil
	}
	if event.Owner == "" {
		return errMissingOwner
	}

	p.hub.BroadcastToUser(StreamNotifications, event.Owner, Message{
		Event: eventName(event.Type),
		Data:  event,
		Meta: map[string]any{
			"event_id": event.ID,
			"key":      event.Key,
		},
	})
	return nil
}

func eventName(typ changefeed.Type) string {
	switch typ {
	case changefeed.TypeInsert:
		return EventNotificationCreated
	case changefeed.TypeDelete:
		return EventNotificationDeleted
	default:
		return EventNotificationUpdated
	}
}
