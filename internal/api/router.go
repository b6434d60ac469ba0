package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/notistore/internal/app"
	iauth "github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/handlers"
	"github.com/charlesng35/notistore/internal/middleware"
	"github.com/charlesng35/notistore/internal/monitoring"
	"github.com/charlesng35/notistore/internal/realtime"
	"github.com/charlesng35/notistore/internal/services"
)

// Dependencies carries the services the router exposes.
type Dependencies struct {
	JWT           *iauth.JWTService
	Notifications *services.NotificationService
	Profiles      *services.ProfileService
	// Hub is optional; without it the websocket endpoint is not registered.
	Hub *realtime.Hub
	// Health is optional; without it health endpoints report disabled.
	Health *monitoring.HealthManager
	// RateStore is optional; without it requests are not rate limited.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.JWT == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}

	notificationHandler, err := handlers.NewNotificationHandler(deps.Notifications)
	if err != nil {
		return nil, err
	}
	profileHandler, err := handlers.NewProfileHandler(deps.Profiles)
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))

	var health *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled {
		health = deps.Health
	}
	registerHealthRoutes(r, handlers.NewHealthHandler(health))

	if cfg.Realtime.WebSocket.Enabled && deps.Hub != nil {
		realtimeHandler := handlers.NewRealtimeHandler(deps.Hub, deps.JWT)
		r.GET("/ws", realtimeHandler.Stream)
		r.GET("/ws/:stream", realtimeHandler.Stream)
	}

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Protected routes; the limiter runs after auth so it can key on the user.
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.JWT))
	if limit := cfg.Server.RateLimit; limit.Enabled && deps.RateStore != nil {
		api.Use(middleware.RateLimit(deps.RateStore, limit.Requests, limit.Window))
	}

	registerNotificationRoutes(api, notificationHandler)
	registerProfileRoutes(api, profileHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
