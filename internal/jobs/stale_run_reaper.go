package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"ParkRevLake/api/datalake"
	"ParkRevLake/internal/config"
	"ParkRevLake/internal/logger"
)

// RunStaleRunReaper schedules cleanup of run log rows stuck in running.
// The running row is the concurrency guard, so a crashed run would block
// its file forever without this.
func RunStaleRunReaper(schedule string, maxAgeMinutes int, db *pgxpool.Pool) (func(), error) {
	loc, err := time.LoadLocation(config.DefaultTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone for stale run reaper: %v", err)
	}
	maxAge := time.Duration(maxAgeMinutes) * time.Minute

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := datalake.ReapStaleRuns(ctx, db, maxAge)
		if err != nil {
			logger.Audit(fmt.Sprintf("Stale run reaper failed: %v", err))
			return
		}
		if n > 0 {
			logger.Audit(fmt.Sprintf("Stale run reaper failed %d stuck runs older than %s", n, maxAge))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule stale run reaper: %v", err)
	}

	c.Start()
	return func() { c.Stop() }, nil
}
