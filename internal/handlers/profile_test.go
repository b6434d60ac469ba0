package handlers_test

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/handlers/testutil"
	"github.com/charlesng35/notistore/internal/models"
)

func TestProfileGetAndPreferences(t *testing.T) {
	env := testutil.NewEnv(t)
	u1 := env.Profiles[0].ID
	token := env.Token(u1, false)

	w := env.Request(http.MethodGet, "/api/profile", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var profile models.Profile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.Equal(t, u1, profile.ID)
	require.Equal(t, models.DefaultThemePreference, profile.ThemePreference)
	require.Equal(t, models.DefaultColorTheme, profile.ColorTheme)

	w = env.Request(http.MethodPatch, "/api/profile/preferences", map[string]any{"theme_preference": "dark"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.Equal(t, "dark", profile.ThemePreference)
	require.Equal(t, models.DefaultColorTheme, profile.ColorTheme)

	w = env.Request(http.MethodPatch, "/api/profile/preferences", map[string]any{"color_theme": " "}, token)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Equal(t, "PROFILE_INVALID", testutil.DecodeResponse(t, w).Error.Code)
}

func TestProfileGetUnknownCaller(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/profile", nil, env.Token("ghost", false))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileDestroyCascades(t *testing.T) {
	env := testutil.NewEnv(t)
	u1, u2 := env.Profiles[0].ID, env.Profiles[1].ID
	token1 := env.Token(u1, false)

	first := createNotification(t, env, token1, u1, "one")
	createNotification(t, env, token1, u1, "two")
	kept := createNotification(t, env, env.Token(u2, false), u2, "other user")

	w := env.Request(http.MethodPost, "/api/notifications/"+first.ID+"/soft-delete", nil, token1)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodDelete, "/api/profile", nil, token1)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		Deleted bool  `json:"deleted"`
		Removed int64 `json:"notifications_removed"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &result)
	require.True(t, result.Deleted)
	require.Equal(t, int64(2), result.Removed)

	var remaining []models.Notification
	require.NoError(t, env.DB.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, kept.ID, remaining[0].ID)

	deletes := 0
	for _, event := range env.Events.Events() {
		if event.Type == changefeed.TypeDelete {
			deletes++
			require.Equal(t, u1, event.Owner)
			require.NotNil(t, event.Old)
			require.Nil(t, event.New)
		}
	}
	require.Equal(t, 2, deletes)
}

func TestProfileDestroyOtherRequiresSystem(t *testing.T) {
	env := testutil.NewEnv(t)
	u1, u2 := env.Profiles[0].ID, env.Profiles[1].ID

	w := env.Request(http.MethodDelete, "/api/profiles/"+u2, nil, env.Token(u1, false))
	require.Equal(t, http.StatusNotFound, w.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.Profile{}).Where("id = ?", u2).Count(&count).Error)
	require.Equal(t, int64(1), count)

	w = env.Request(http.MethodDelete, "/api/profiles/"+u2, nil, env.Token("identity-sync", true))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.NoError(t, env.DB.Model(&models.Profile{}).Where("id = ?", u2).Count(&count).Error)
	require.Zero(t, count)
}

func TestProfileCreateRequiresSystem(t *testing.T) {
	env := testutil.NewEnv(t)
	id := uuid.NewString()
	body := map[string]any{"id": id, "display_name": "Grace", "email": "Grace@Example.com"}

	w := env.Request(http.MethodPost, "/api/profiles", body, env.Token(env.Profiles[0].ID, false))
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())

	var count int64
	require.NoError(t, env.DB.Model(&models.Profile{}).Where("id = ?", id).Count(&count).Error)
	require.Zero(t, count)

	system := env.Token("identity-sync", true)
	w = env.Request(http.MethodPost, "/api/profiles", body, system)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var profile models.Profile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.Equal(t, id, profile.ID)
	require.Equal(t, "grace@example.com", profile.Email)
	require.Equal(t, models.DefaultThemePreference, profile.ThemePreference)

	w = env.Request(http.MethodPost, "/api/profiles", body, system)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	require.Equal(t, "PROFILE_CONFLICT", testutil.DecodeResponse(t, w).Error.Code)

	w = env.Request(http.MethodGet, "/api/profile", nil, env.Token(id, false))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestProfileCreateValidatesInput(t *testing.T) {
	env := testutil.NewEnv(t)
	system := env.Token("identity-sync", true)

	for _, body := range []map[string]any{
		{"id": "not-a-uuid"},
		{"email": "nope"},
		{"theme_preference": " "},
	} {
		w := env.Request(http.MethodPost, "/api/profiles", body, system)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
		require.Equal(t, "PROFILE_INVALID", testutil.DecodeResponse(t, w).Error.Code)
	}

	w := env.Request(http.MethodPost, "/api/profiles", map[string]any{"display_name": "Generated"}, system)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var profile models.Profile
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &profile)
	require.NotEmpty(t, profile.ID)
}
