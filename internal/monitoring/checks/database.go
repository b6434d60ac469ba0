package checks

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/notistore/internal/models"
	"github.com/charlesng35/notistore/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// Database reports the store ready once the connection answers a ping within timeout and the
// notifications schema has been migrated.
func Database(db *gorm.DB, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultDatabaseTimeout
	}

	return monitoring.NewCheck("database", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "database not configured",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := sqlDB.PingContext(probeCtx); err != nil {
			return monitoring.ResultFromError("database", err, time.Since(start))
		}

		if !db.WithContext(probeCtx).Migrator().HasTable(&models.Notification{}) {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  "notifications schema not migrated",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("dialect %s", db.Dialector.Name()),
			Duration: time.Since(start),
		}
	})
}
