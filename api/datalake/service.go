package datalake

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/internal/config"
	"ParkRevLake/internal/serviceiface"
)

// DatalakeService hosts the parking revenue pipeline endpoints on its own
// port behind the gateway.
type DatalakeService struct {
	config map[string]interface{}
	pool   *pgxpool.Pool
	db     *sql.DB
	cache  *LookupCache
	server *http.Server
}

func NewDatalakeService(cfg map[string]interface{}, pool *pgxpool.Pool, db *sql.DB, cache *LookupCache) serviceiface.Service {
	return &DatalakeService{config: cfg, pool: pool, db: db, cache: cache}
}

func (s *DatalakeService) Name() string {
	return "datalake"
}

func (s *DatalakeService) Start() error {
	if err := ValidateTransforms(); err != nil {
		return fmt.Errorf("transform validation failed: %w", err)
	}

	uploadDir, _ := s.config["upload_dir"].(string)
	if uploadDir == "" {
		uploadDir = config.DefaultUploadDir
	}
	port := 7143
	if p, ok := s.config["port"].(int); ok && p > 0 {
		port = p
	}

	// First cache load off the startup path; runs join reference tables
	// in SQL either way.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.cache.Initialize(ctx, s.pool); err != nil {
			log.Printf("[Datalake] Initial cache load failed: %v", err)
		}
	}()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router(uploadDir),
	}
	go func() {
		log.Printf("Datalake Service started on :%d", port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Datalake Service failed: %v", err)
		}
	}()
	return nil
}

func (s *DatalakeService) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Cache exposes the lookup cache for jobs that refresh it.
func (s *DatalakeService) Cache() *LookupCache {
	return s.cache
}

func (s *DatalakeService) router(uploadDir string) http.Handler {
	r := mux.NewRouter()
	dl := r.PathPrefix("/datalake").Subrouter()

	dl.HandleFunc("/upload", UploadHandler(s.pool, uploadDir)).Methods(http.MethodPost)

	dl.HandleFunc("/files/status", ListFileStatusesHandler(s.db)).Methods(http.MethodGet)
	dl.HandleFunc("/files/{id}/load-staging", LoadStagingHandler(s.pool)).Methods(http.MethodPost)
	dl.HandleFunc("/files/{id}/process-etl", ProcessETLHandler(s.pool, s.cache)).Methods(http.MethodPost)
	dl.HandleFunc("/files/{id}/process-etl/stream", StreamETLRun(s.pool, s.cache)).Methods(http.MethodGet)
	dl.HandleFunc("/files/{id}/status", FileStatusHandler(s.db)).Methods(http.MethodGet)
	dl.HandleFunc("/files/{id}/runs", RunLogsHandler(s.pool)).Methods(http.MethodGet)
	dl.HandleFunc("/files/{id}/rejects", RejectsHandler(s.pool, s.cache)).Methods(http.MethodGet)
	dl.HandleFunc("/files/{id}/rejects/requeue", RequeueRejectsHandler(s.pool)).Methods(http.MethodPost)

	dl.HandleFunc("/etl/pending", PendingETLHandler(s.db)).Methods(http.MethodGet)
	dl.HandleFunc("/etl/run-by-date", ProcessETLByDateHandler(s.pool, s.cache)).Methods(http.MethodPost)

	dl.HandleFunc("/transactions/search", SearchTransactionsHandler(s.pool, s.cache)).Methods(http.MethodPost)
	dl.HandleFunc("/transactions/summary", SummarizeTransactionsHandler(s.pool)).Methods(http.MethodPost)

	dl.HandleFunc("/cache/status", CacheStatusHandler(s.cache)).Methods(http.MethodGet)
	dl.HandleFunc("/cache/rebuild", CacheRebuildHandler(s.pool, s.cache)).Methods(http.MethodPost)

	dl.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Datalake Service is healthy"))
	}).Methods(http.MethodGet)

	return r
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
