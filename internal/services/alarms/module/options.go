package module

import (
	"time"

	"chime/internal/platform/config"
	"chime/internal/services/alarms/service"
)

// FromConfig reads scheduler tuning from the SCHED_ config namespace
func FromConfig(cfg config.Conf) service.Config {
	sc := cfg.Prefix("SCHED_")
	return service.Config{
		TickInterval:    sc.MayDuration("TICK_INTERVAL", time.Second),
		CleanupEvery:    sc.MayDuration("CLEANUP_EVERY", 10*time.Minute),
		StatsEvery:      sc.MayDuration("STATS_EVERY", 5*time.Minute),
		StaleAfter:      sc.MayDuration("STALE_AFTER", time.Hour),
		DefaultTimezone: sc.MayString("DEFAULT_TZ", "UTC"),
		ListLimit:       sc.MayInt("LIST_LIMIT", 100),
	}
}
