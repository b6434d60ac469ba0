package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/notistore/internal/handlers"
)

func registerProfileRoutes(api *gin.RouterGroup, handler *handlers.ProfileHandler) {
	profile := api.Group("/profile")
	{
		profile.GET("", handler.Get)
		profile.PATCH("/preferences", handler.UpdatePreferences)
		profile.DELETE("", handler.Destroy)
	}

	// System callers provision and destroy profiles as the identity provider adds or removes accounts.
	api.POST("/profiles", handler.Create)
	api.DELETE("/profiles/:id", handler.Destroy)
}
