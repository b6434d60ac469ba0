package realtime

// StreamNotifications carries notification change events to their owner.
const StreamNotifications = "notifications"

// Event names sent on StreamNotifications.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
	EventNotificationDeleted = "notification.deleted"
)

// AllowedStreams returns the stream names clients may subscribe to.
func AllowedStreams() map[string]struct{} {
	return map[string]struct{}{
		StreamNotifications: {},
	}
}
