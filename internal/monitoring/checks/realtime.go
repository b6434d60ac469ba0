package checks

import (
	"context"
	"fmt"
	"time"

	"github.com/charlesng35/notistore/internal/monitoring"
)

// ConnectionCounter exposes the open connection count of the realtime hub.
type ConnectionCounter interface {
	Connections() int
}

// Realtime reports whether the realtime hub is available. A missing hub degrades the service
// because notifications are still stored, just not pushed.
func Realtime(hub ConnectionCounter) monitoring.Check {
	return monitoring.NewCheck("realtime", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if hub == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "realtime hub unavailable",
				Duration: time.Since(start),
			}
		}

		return monitoring.ProbeResult{
			Status:   monitoring.StatusUp,
			Details:  fmt.Sprintf("%d connections", hub.Connections()),
			Duration: time.Since(start),
		}
	})
}
