package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/database/testutil"
	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/policy"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, event changefeed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingPublisher) Events() []changefeed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changefeed.Event(nil), r.events...)
}

func (r *recordingPublisher) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// stepClock advances one second on every reading so created_at values are strictly ordered.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type notificationFixture struct {
	db        *gorm.DB
	svc       *NotificationService
	publisher *recordingPublisher
	clock     *stepClock
	u1        policy.Caller
	u2        policy.Caller
}

func newNotificationFixture(t *testing.T, opts ...NotificationServiceOption) *notificationFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithProfiles(2))
	profiles := testutil.Profiles(t, db)
	require.Len(t, profiles, 2)

	publisher := &recordingPublisher{}
	clock := newStepClock()
	base := []NotificationServiceOption{WithPublisher(publisher), WithClock(clock.Now)}

	svc, err := NewNotificationService(db, append(base, opts...)...)
	require.NoError(t, err)

	return &notificationFixture{
		db:        db,
		svc:       svc,
		publisher: publisher,
		clock:     clock,
		u1:        policy.Caller{ID: profiles[0].ID},
		u2:        policy.Caller{ID: profiles[1].ID},
	}
}

func (f *notificationFixture) create(t *testing.T, caller policy.Caller, owner string, content string) *models.Notification {
	t.Helper()

	row, err := f.svc.Create(context.Background(), caller, CreateNotificationInput{
		UserID:  owner,
		Type:    "comment",
		Content: content,
	})
	require.NoError(t, err)
	return row
}

func (f *notificationFixture) stored(t *testing.T, id string) models.Notification {
	t.Helper()

	var row models.Notification
	require.NoError(t, f.db.Where("id = ?", id).First(&row).Error)
	return row
}
