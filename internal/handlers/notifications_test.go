package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notistore/internal/app"
	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/handlers/testutil"
	"github.com/charlesng35/notistore/internal/models"
)

func createNotification(t *testing.T, env *testutil.Env, token, owner, content string) models.Notification {
	t.Helper()

	w := env.Request(http.MethodPost, "/api/notifications", map[string]any{
		"user_id": owner,
		"type":    "comment",
		"content": content,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var row models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &row)
	return row
}

func TestNotificationLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.Profiles[0].ID
	token := env.Token(u1, false)

	created := createNotification(t, env, token, u1, "hello")
	require.Equal(t, u1, created.UserID)
	require.False(t, created.Read)
	require.Nil(t, created.DeletedAt)

	w := env.Request(http.MethodGet, "/api/notifications", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	require.Equal(t, 1, resp.Meta.Count)
	require.Equal(t, int64(1), resp.Meta.Unread)

	w = env.Request(http.MethodPost, "/api/notifications/"+created.ID+"/read", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var read models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &read)
	require.True(t, read.Read)

	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var count struct {
		Unread int64 `json:"unread"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &count)
	require.Zero(t, count.Unread)

	w = env.Request(http.MethodPost, "/api/notifications/"+created.ID+"/unread", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodPatch, "/api/notifications/"+created.ID, map[string]any{"content": "edited"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var edited models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &edited)
	require.Equal(t, "edited", edited.Content)

	w = env.Request(http.MethodPost, "/api/notifications/"+created.ID+"/soft-delete", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted models.Notification
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &deleted)
	require.NotNil(t, deleted.DeletedAt)

	w = env.Request(http.MethodGet, "/api/notifications", nil, token)
	require.Equal(t, 0, testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/notifications?include_deleted=true", nil, token)
	require.Equal(t, 1, testutil.DecodeResponse(t, w).Meta.Count)

	w = env.Request(http.MethodGet, "/api/notifications/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	types := make([]changefeed.Type, 0)
	for _, event := range env.Events.Events() {
		types = append(types, event.Type)
	}
	require.Equal(t, []changefeed.Type{
		changefeed.TypeInsert,
		changefeed.TypeUpdate,
		changefeed.TypeUpdate,
		changefeed.TypeUpdate,
		changefeed.TypeUpdate,
	}, types)
}

func TestNotificationsRequireAuthentication(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/notifications", "/api/notifications/unread-count", "/api/profile"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := env.Request(http.MethodGet, "/api/notifications", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestForeignNotificationLooksMissing(t *testing.T) {
	env := testutil.NewEnv(t)
	u1, u2 := env.Profiles[0].ID, env.Profiles[1].ID
	owned := createNotification(t, env, env.Token(u1, false), u1, "private")
	intruder := env.Token(u2, false)

	requests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/notifications/" + owned.ID, nil},
		{http.MethodPatch, "/api/notifications/" + owned.ID, map[string]any{"content": "x"}},
		{http.MethodPost, "/api/notifications/" + owned.ID + "/read", nil},
		{http.MethodPost, "/api/notifications/" + owned.ID + "/soft-delete", nil},
		{http.MethodDelete, "/api/notifications/" + owned.ID, nil},
	}
	for _, tc := range requests {
		w := env.Request(tc.method, tc.path, tc.body, intruder)
		require.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
		resp := testutil.DecodeResponse(t, w)
		require.Equal(t, "NOTIFICATION_NOT_FOUND", resp.Error.Code)
	}

	var stored models.Notification
	require.NoError(t, env.DB.Where("id = ?", owned.ID).First(&stored).Error)
	require.Equal(t, "private", stored.Content)
	require.False(t, stored.Read)
	require.Nil(t, stored.DeletedAt)

	w := env.Request(http.MethodGet, "/api/notifications", nil, intruder)
	require.Equal(t, 0, testutil.DecodeResponse(t, w).Meta.Count)
}

func TestCrossUserDeliveryIsAllowed(t *testing.T) {
	env := testutil.NewEnv(t)
	u1, u2 := env.Profiles[0].ID, env.Profiles[1].ID

	delivered := createNotification(t, env, env.Token(u1, false), u2, "for you")
	require.Equal(t, u2, delivered.UserID)

	w := env.Request(http.MethodGet, "/api/notifications", nil, env.Token(u2, false))
	require.Equal(t, 1, testutil.DecodeResponse(t, w).Meta.Count)

	events := env.Events.Events()
	require.Len(t, events, 1)
	require.Equal(t, u1, events[0].Actor)
	require.Equal(t, u2, events[0].Owner)
}

func TestCreateConstraintViolations(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.Profiles[0].ID
	token := env.Token(u1, false)

	cases := []map[string]any{
		{"user_id": u1, "content": "missing type"},
		{"user_id": u1, "type": "comment"},
		{"user_id": u1, "type": "  ", "content": "blank type"},
		{"type": "comment", "content": "no owner"},
		{"user_id": uuid.NewString(), "type": "comment", "content": "unknown owner"},
		{"user_id": u1, "type": "comment", "content": "bad ref", "reference_id": "nope"},
	}
	for i, body := range cases {
		w := env.Request(http.MethodPost, "/api/notifications", body, token)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, "case %d: %s", i, w.Body.String())
		require.Equal(t, "NOTIFICATION_CONSTRAINT_VIOLATION", testutil.DecodeResponse(t, w).Error.Code)
	}

	var count int64
	require.NoError(t, env.DB.Model(&models.Notification{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, env.Events.Events())
}

func TestCreateRejectsMalformedJSON(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.Profiles[0].ID, false)

	w := env.Request(http.MethodPost, "/api/notifications", "not an object", token)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownNotificationIsNotFound(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.Profiles[0].ID, false)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		w := env.Request(http.MethodGet, "/api/notifications/"+id, nil, token)
		require.Equal(t, http.StatusNotFound, w.Code)
	}
}

func TestMarkAllReadAndDelete(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.Profiles[0].ID
	token := env.Token(u1, false)

	first := createNotification(t, env, token, u1, "one")
	createNotification(t, env, token, u1, "two")

	w := env.Request(http.MethodPost, "/api/notifications/read-all", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var result struct {
		Updated int64 `json:"updated"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	require.Equal(t, int64(2), result.Updated)

	w = env.Request(http.MethodDelete, "/api/notifications/"+first.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	// Delete is a soft delete; the row remains.
	var stored models.Notification
	require.NoError(t, env.DB.Where("id = ?", first.ID).First(&stored).Error)
	require.NotNil(t, stored.DeletedAt)

	w = env.Request(http.MethodGet, "/api/notifications?unread_only=true", nil, token)
	require.Equal(t, 0, testutil.DecodeResponse(t, w).Meta.Count)
}

func TestListPagination(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.Profiles[0].ID
	token := env.Token(u1, false)

	for i := 0; i < 5; i++ {
		createNotification(t, env, token, u1, fmt.Sprintf("n%d", i))
	}

	w := env.Request(http.MethodGet, "/api/notifications?limit=2&offset=1", nil, token)
	resp := testutil.DecodeResponse(t, w)
	require.Equal(t, 2, resp.Meta.Count)
	require.Equal(t, 2, resp.Meta.Limit)
	require.Equal(t, 1, resp.Meta.Offset)
	require.Equal(t, int64(5), resp.Meta.Unread)

	var page []models.Notification
	testutil.DecodeInto(t, resp.Data, &page)
	require.Equal(t, "n3", page[0].Content)
	require.Equal(t, "n2", page[1].Content)
}

func TestListMetaReportsAppliedLimit(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.Token(env.Profiles[0].ID, false)

	for query, want := range map[string]int{
		"":           25,
		"?limit=0":   25,
		"?limit=500": 100,
		"?limit=7":   7,
	} {
		w := env.Request(http.MethodGet, "/api/notifications"+query, nil, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Equal(t, want, testutil.DecodeResponse(t, w).Meta.Limit, query)
	}
}

func TestCrossUserDeliveryRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Notifications.Delivery = app.DeliveryConfig{RatePerMinute: 1, Burst: 1}
	})
	u1, u2 := env.Profiles[0].ID, env.Profiles[1].ID
	token := env.Token(u1, false)

	createNotification(t, env, token, u2, "first")

	w := env.Request(http.MethodPost, "/api/notifications", map[string]any{
		"user_id": u2, "type": "comment", "content": "second",
	}, token)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", testutil.DecodeResponse(t, w).Error.Code)

	// Self-addressed and system deliveries are not throttled.
	createNotification(t, env, token, u1, "self")
	createNotification(t, env, env.Token("system-service", true), u2, "from system")
}
