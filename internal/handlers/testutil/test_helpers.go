package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/api"
	"github.com/charlesng35/notistore/internal/app"
	iauth "github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/changefeed"
	sharedtestutil "github.com/charlesng35/notistore/internal/database/testutil"
	"github.com/charlesng35/notistore/internal/middleware"
	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/monitoring"
	"github.com/charlesng35/notistore/internal/monitoring/checks"
	"github.com/charlesng35/notistore/internal/realtime"
	"github.com/charlesng35/notistore/internal/services"
	"github.com/charlesng35/notistore/pkg/response"
)

const jwtSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Hub      *realtime.Hub
	Events   *EventRecorder
	Config   *app.Config
	Profiles []models.Profile
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// EventRecorder captures change events published by the services.
type EventRecorder struct {
	mu     sync.Mutex
	events []changefeed.Event
}

// Publish implements changefeed.Publisher.
func (r *EventRecorder) Publish(_ context.Context, event changefeed.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []changefeed.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]changefeed.Event(nil), r.events...)
}

// NewEnv provisions a fresh handler test environment with two profiles.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithProfiles(2))

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Notifications: app.NotificationConfig{
			Delivery: app.DeliveryConfig{RatePerMinute: 60, Burst: 10},
		},
		Realtime: app.RealtimeConfig{
			WebSocket: app.WebSocketConfig{Enabled: true},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	hub := realtime.NewHub(cfg.Realtime.WebSocket.HubOptions())
	recorder := &EventRecorder{}
	publisher := changefeed.NewFanout().
		Add("realtime", realtime.NewChangePublisher(hub)).
		Add("recorder", recorder)

	notifications, err := services.NewNotificationService(db,
		services.WithPublisher(publisher),
		services.WithDeliveryLimiter(services.NewDeliveryLimiter(cfg.Notifications.Delivery.RatePerMinute, cfg.Notifications.Delivery.Burst)),
	)
	require.NoError(t, err)

	profiles, err := services.NewProfileService(db, publisher)
	require.NoError(t, err)

	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(db, time.Second))
	health.RegisterLiveness(checks.Realtime(hub))

	store := middleware.NewMemoryRateStore(time.Minute)
	t.Cleanup(store.Close)

	router, err := api.NewRouter(cfg, api.Dependencies{
		JWT:           jwtSvc,
		Notifications: notifications,
		Profiles:      profiles,
		Hub:           hub,
		Health:        health,
		RateStore:     store,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Hub:      hub,
		Events:   recorder,
		Config:   cfg,
		Profiles: sharedtestutil.Profiles(t, db),
	}
}

// Token issues an access token for userID. A system token carries the system role.
func (e *Env) Token(userID string, system bool) string {
	e.T.Helper()

	input := iauth.AccessTokenInput{UserID: userID}
	if system {
		input.Metadata = map[string]any{"role": iauth.RoleSystem}
	}
	token, err := e.JWT.GenerateAccessToken(input)
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
