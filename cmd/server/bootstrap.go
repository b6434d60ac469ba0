package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/api"
	"github.com/charlesng35/notistore/internal/app"
	"github.com/charlesng35/notistore/internal/app/maintenance"
	iauth "github.com/charlesng35/notistore/internal/auth"
	"github.com/charlesng35/notistore/internal/cache"
	"github.com/charlesng35/notistore/internal/changefeed"
	"github.com/charlesng35/notistore/internal/database"
	"github.com/charlesng35/notistore/internal/middleware"
	"github.com/charlesng35/notistore/internal/monitoring"
	"github.com/charlesng35/notistore/internal/monitoring/checks"
	"github.com/charlesng35/notistore/internal/policy"
	"github.com/charlesng35/notistore/internal/realtime"
	"github.com/charlesng35/notistore/internal/services"
)

const (
	databaseCheckTimeout = 2 * time.Second
	rateStoreSweep       = time.Minute
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Hub           *realtime.Hub
	Publisher     *changefeed.Fanout
	Notifications *services.NotificationService
	Profiles      *services.ProfileService
	Jobs          *monitoring.JobTracker
	Health        *monitoring.HealthManager
	Cleaner       *maintenance.Cleaner
	RateStore     middleware.RateStore
	SharedCounter *cache.DatabaseStore
	Router        *gin.Engine
}

// bootstrapRuntime initialises the database, change sinks, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	rules := policy.DefaultRules()

	stack.DB, err = initialiseDatabase(cfg, rules)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	stack.Hub = realtime.NewHub(cfg.Realtime.WebSocket.HubOptions())

	stack.Publisher, err = buildPublisher(ctx, cfg, stack.Hub, log)
	if err != nil {
		return nil, err
	}

	notifCfg := cfg.Notifications
	stack.Notifications, err = services.NewNotificationService(stack.DB,
		services.WithRules(rules),
		services.WithPublisher(stack.Publisher),
		services.WithDeliveryLimiter(services.NewDeliveryLimiter(notifCfg.Delivery.RatePerMinute, notifCfg.Delivery.Burst)),
		services.WithListLimits(notifCfg.List.DefaultLimit, notifCfg.List.MaxLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise notification service: %w", err)
	}

	stack.Profiles, err = services.NewProfileService(stack.DB, stack.Publisher)
	if err != nil {
		return nil, fmt.Errorf("initialise profile service: %w", err)
	}

	if cfg.Server.RateLimit.Enabled {
		if err := stack.configureRateStore(cfg.Server.RateLimit); err != nil {
			return nil, err
		}
	}

	stack.Jobs = monitoring.NewJobTracker()

	cleanerOpts := []maintenance.Option{
		maintenance.WithRetentionDays(notifCfg.Retention.SoftDeletedDays),
		maintenance.WithSchedule(notifCfg.Retention.Schedule),
		maintenance.WithBatchSize(notifCfg.Retention.BatchSize),
		maintenance.WithTracker(stack.Jobs),
	}
	if stack.SharedCounter != nil {
		cleanerOpts = append(cleanerOpts, maintenance.WithSweeper(stack.SharedCounter))
	}

	stack.Cleaner = maintenance.NewCleaner(stack.Notifications, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if cfg.Monitoring.Health.Enabled {
		stack.Health = buildHealth(stack, cfg)
	}

	stack.Router, err = api.NewRouter(cfg, api.Dependencies{
		JWT:           jwtSvc,
		Notifications: stack.Notifications,
		Profiles:      stack.Profiles,
		Hub:           stack.Hub,
		Health:        stack.Health,
		RateStore:     stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// configureRateStore picks the request counter backend. The database backend shares limits
// across instances; expired counters are swept by the maintenance scheduler.
func (s *runtimeStack) configureRateStore(cfg app.RateLimitConfig) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Store)) {
	case "", "memory":
		s.RateStore = middleware.NewMemoryRateStore(rateStoreSweep)
	case "database", "db":
		s.SharedCounter = cache.NewDatabaseStore(s.DB)
		s.RateStore = s.SharedCounter
	default:
		return fmt.Errorf("unsupported rate limit store %q", cfg.Store)
	}
	return nil
}

func initialiseDatabase(cfg *app.Config, rules *policy.RuleSet) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db, rules); err != nil {
		closeDatabase(db, zap.NewNop())
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

// buildPublisher assembles the change sinks. The realtime sink is always present; SNS is optional.
func buildPublisher(ctx context.Context, cfg *app.Config, hub *realtime.Hub, log *zap.Logger) (*changefeed.Fanout, error) {
	fanout := changefeed.NewFanout().Add("realtime", realtime.NewChangePublisher(hub))

	if cfg.Realtime.SNS.Enabled {
		snsPublisher, err := changefeed.NewSNSPublisher(ctx, cfg.Realtime.SNS.PublisherConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise sns publisher: %w", err)
		}
		fanout.Add("sns", snsPublisher)
		log.Info("sns change sink enabled", zap.String("topic_arn", cfg.Realtime.SNS.TopicARN))
	}

	log.Info("change sinks configured", zap.String("sinks", strings.Join(fanout.Sinks(), ",")))
	return fanout, nil
}

func buildHealth(stack *runtimeStack, cfg *app.Config) *monitoring.HealthManager {
	health := monitoring.NewHealthManager()
	health.RegisterReadiness(checks.Database(stack.DB, databaseCheckTimeout))
	health.RegisterReadiness(checks.Maintenance(stack.Jobs, maintenanceMaxAge(cfg.Notifications.Retention.Schedule)))
	if cfg.Realtime.WebSocket.Enabled {
		health.RegisterLiveness(checks.Realtime(stack.Hub))
	}
	return health
}

// maintenanceMaxAge allows two missed runs of the common descriptors before reporting staleness.
func maintenanceMaxAge(schedule string) time.Duration {
	switch strings.TrimSpace(schedule) {
	case "@hourly":
		return 2 * time.Hour
	case "@weekly":
		return 15 * 24 * time.Hour
	default:
		return 50 * time.Hour
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs did not stop before shutdown deadline")
		}
	}

	if closer, ok := s.RateStore.(interface{ Close() }); ok {
		closer.Close()
	}

	closeDatabase(s.DB, log)
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
