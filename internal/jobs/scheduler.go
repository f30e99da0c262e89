package jobs

import (
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/api/datalake"
	"ParkRevLake/internal/config"
	"ParkRevLake/internal/logger"
	"ParkRevLake/internal/serviceiface"
)

// CronService owns the background jobs: the lookup cache refresher and the
// stale run reaper.
type CronService struct {
	config map[string]interface{}
	db     *pgxpool.Pool
	cache  *datalake.LookupCache
	stops  []func()
}

func NewCronService(cfg map[string]interface{}, db *pgxpool.Pool, cache *datalake.LookupCache) serviceiface.Service {
	return &CronService{
		config: cfg,
		db:     db,
		cache:  cache,
	}
}

func (s *CronService) Name() string {
	return "cron"
}

func (s *CronService) Start() error {
	log.Println("Starting cron service...")

	refreshSchedule := config.DefaultCacheRefreshSchedule
	reaperSchedule := config.DefaultStaleRunSchedule
	maxAgeMinutes := config.DefaultStaleRunMaxAge
	if s.config != nil {
		if v, ok := s.config["cache_refresh_schedule"].(string); ok && v != "" {
			refreshSchedule = v
		}
		if v, ok := s.config["stale_run_schedule"].(string); ok && v != "" {
			reaperSchedule = v
		}
		if v, ok := s.config["stale_run_max_age_minutes"].(int); ok && v > 0 {
			maxAgeMinutes = v
		}
	}

	stopRefresh, err := RunCacheRefresher(refreshSchedule, s.db, s.cache)
	if err != nil {
		return fmt.Errorf("failed to start cache refresher: %v", err)
	}
	s.stops = append(s.stops, stopRefresh)
	logger.Audit("Lookup cache refresher scheduled for " + refreshSchedule)

	stopReaper, err := RunStaleRunReaper(reaperSchedule, maxAgeMinutes, s.db)
	if err != nil {
		return fmt.Errorf("failed to start stale run reaper: %v", err)
	}
	s.stops = append(s.stops, stopReaper)
	logger.Audit("Stale run reaper scheduled for " + reaperSchedule)

	return nil
}

func (s *CronService) Stop() error {
	for _, stop := range s.stops {
		stop()
	}
	log.Println("Cron service stopped.")
	return nil
}
