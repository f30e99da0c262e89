package config

const (
	DefaultTimeZone = "Pacific/Auckland"

	// LookupCache refresh, reference data changes rarely
	DefaultCacheRefreshSchedule = "*/15 * * * *"

	// Reaper for run log rows stuck in running after a crash
	DefaultStaleRunSchedule = "*/5 * * * *"
	DefaultStaleRunMaxAge   = 60 // minutes

	StagingBatchSize = 1000

	DefaultUploadDir   = "./uploads"
	MaxUploadBytes     = 50 << 20
	DefaultDatalakeURL = "http://localhost:7143"
)
