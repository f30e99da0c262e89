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

// RunCacheRefresher schedules periodic reloads of the lookup cache so
// reference data edits reach the request path without a restart. A failed
// reload keeps the previous snapshot and is only logged.
func RunCacheRefresher(schedule string, db *pgxpool.Pool, cache *datalake.LookupCache) (func(), error) {
	loc, err := time.LoadLocation(config.DefaultTimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone for cache refresher: %v", err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := cache.Initialize(ctx, db); err != nil {
			logger.Audit(fmt.Sprintf("Lookup cache refresh failed: %v", err))
			return
		}
		logger.Audit("Lookup cache refreshed at " + time.Now().In(loc).String())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule cache refresher: %v", err)
	}

	c.Start()
	return func() { c.Stop() }, nil
}
