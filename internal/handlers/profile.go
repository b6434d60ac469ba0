package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notistore/internal/services"
	appErrors "github.com/charlesng35/notistore/pkg/errors"
	"github.com/charlesng35/notistore/pkg/response"
)

// ProfileHandler exposes current-user profile endpoints.
type ProfileHandler struct {
	profiles *services.ProfileService
}

// NewProfileHandler configures a profile handler.
func NewProfileHandler(profiles *services.ProfileService) (*ProfileHandler, error) {
	if profiles == nil {
		return nil, errors.New("profile handler: service is required")
	}
	return &ProfileHandler{profiles: profiles}, nil
}

// Get returns the caller's profile.
func (h *ProfileHandler) Get(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(requestContext(c), caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// Create provisions a profile on behalf of the identity provider. Only system callers may create profiles.
func (h *ProfileHandler) Create(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}
	if !caller.System {
		response.Error(c, appErrors.ErrForbidden.WithMessage("Profiles are provisioned by system callers only"))
		return
	}

	var body services.CreateProfileInput
	if !bindAndValidateAs(c, &body, services.ErrProfileInvalid) {
		return
	}

	profile, err := h.profiles.Create(requestContext(c), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, profile)
}

// UpdatePreferences changes the caller's theme preferences.
func (h *ProfileHandler) UpdatePreferences(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var body services.UpdatePreferencesInput
	if !bindAndValidateAs(c, &body, services.ErrProfileInvalid) {
		return
	}

	profile, err := h.profiles.UpdatePreferences(requestContext(c), caller, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, profile)
}

// Destroy removes a profile with every notification addressed to it. Without an :id parameter
// the caller's own profile is destroyed; other profiles require a system caller.
func (h *ProfileHandler) Destroy(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	profileID := strings.TrimSpace(c.Param("id"))
	if profileID == "" {
		profileID = caller.ID
	}

	removed, err := h.profiles.Destroy(requestContext(c), caller, profileID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"deleted":               true,
		"profile_id":            profileID,
		"notifications_removed": removed,
	})
}
