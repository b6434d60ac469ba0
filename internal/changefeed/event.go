package changefeed

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/charlesng35/notistore/internal/models"
)

// Type enumerates the kinds of committed row changes.
type Type string

const (
	TypeInsert Type = "INSERT"
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
)

// Event describes one committed change with complete before and after row images.
// Old is nil for inserts; New is nil for deletes.
type Event struct {
	ID          string               `json:"id"`
	Type        Type                 `json:"type"`
	Table       string               `json:"table"`
	Key         string               `json:"key"`
	Owner       string               `json:"owner"`
	Old         *models.Notification `json:"old"`
	New         *models.Notification `json:"new"`
	Actor       string               `json:"actor,omitempty"`
	CommittedAt time.Time            `json:"committed_at"`
}

// NewID generates a ULID, sortable by creation time.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// NewEvent builds an event for the notifications table. Row images are copied so later
// mutations by the caller do not leak into published events.
func NewEvent(typ Type, before, after *models.Notification, actor string) Event {
	ev := Event{
		ID:          NewID(),
		Type:        typ,
		Table:       models.Notification{}.TableName(),
		Old:         snapshot(before),
		New:         snapshot(after),
		Actor:       actor,
		CommittedAt: time.Now().UTC(),
	}

	ref := ev.New
	if ref == nil {
		ref = ev.Old
	}
	if ref != nil {
		ev.Key = ref.ID
		ev.Owner = ref.UserID
	}
	return ev
}

// Inserted builds an INSERT event.
func Inserted(row *models.Notification, actor string) Event {
	return NewEvent(TypeInsert, nil, row, actor)
}

// Updated builds an UPDATE event carrying both row images.
func Updated(before, after *models.Notification, actor string) Event {
	return NewEvent(TypeUpdate, before, after, actor)
}

// Deleted builds a DELETE event carrying the last row image.
func Deleted(row *models.Notification, actor string) Event {
	return NewEvent(TypeDelete, row, nil, actor)
}

func snapshot(row *models.Notification) *models.Notification {
	if row == nil {
		return nil
	}
	cpy := *row
	cpy.Profile = nil
	if row.ReferenceID != nil {
		ref := *row.ReferenceID
		cpy.ReferenceID = &ref
	}
	if row.DeletedAt != nil {
		at := *row.DeletedAt
		cpy.DeletedAt = &at
	}
	return &cpy
}
