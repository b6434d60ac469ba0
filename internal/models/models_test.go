package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	_, err := uuid.Parse(base.ID)
	require.NoError(t, err)
}

func TestBaseModelBeforeCreateKeepsExistingID(t *testing.T) {
	base := BaseModel{ID: "fixed"}
	require.NoError(t, base.BeforeCreate(nil))
	require.Equal(t, "fixed", base.ID)
}

func TestProfileBeforeCreateAppliesPreferenceDefaults(t *testing.T) {
	profile := &Profile{DisplayName: "Ada"}
	require.NoError(t, profile.BeforeCreate(nil))

	require.NotEmpty(t, profile.ID)
	require.Equal(t, DefaultThemePreference, profile.ThemePreference)
	require.Equal(t, DefaultColorTheme, profile.ColorTheme)

	custom := &Profile{ThemePreference: "dark", ColorTheme: "blue"}
	require.NoError(t, custom.BeforeCreate(nil))
	require.Equal(t, "dark", custom.ThemePreference)
	require.Equal(t, "blue", custom.ColorTheme)
}

func TestNotificationBeforeCreateGeneratesID(t *testing.T) {
	n := &Notification{UserID: uuid.NewString(), Type: "comment", Content: "hi"}
	require.NoError(t, n.BeforeCreate(nil))
	require.NotEmpty(t, n.ID)
	require.False(t, n.IsDeleted())
	require.Equal(t, "notifications", n.TableName())
}
