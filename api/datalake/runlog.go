package datalake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunLog is a row of parking.etl_processing_log.
type RunLog struct {
	ID               uuid.UUID  `json:"id"`
	SourceTable      string     `json:"source_table"`
	SourceFileID     *uuid.UUID `json:"source_file_id,omitempty"`
	RunDate          *time.Time `json:"run_date,omitempty"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed *int       `json:"records_processed,omitempty"`
	RecordsCreated   *int       `json:"records_created,omitempty"`
	RecordsUpdated   *int       `json:"records_updated,omitempty"`
	RecordsFailed    *int       `json:"records_failed,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	TriggeredBy      string     `json:"triggered_by,omitempty"`
}

// startRun inserts the running log row. The partial unique indexes on the
// log table make this the concurrency guard: a second caller for the same
// file or date hits 23505 and gets ErrRunInProgress, with no window between
// check and insert.
func startRun(ctx context.Context, pool *pgxpool.Pool, sourceTable string, fileID *uuid.UUID, runDate *time.Time, triggeredBy string) (uuid.UUID, error) {
	var id uuid.UUID
	err := pool.QueryRow(ctx, `
		INSERT INTO parking.etl_processing_log (source_table, source_file_id, run_date, status, triggered_by)
		VALUES ($1, $2, $3, 'running', $4)
		RETURNING id`,
		sourceTable, fileID, runDate, triggeredBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return uuid.Nil, ErrRunInProgress
		}
		return uuid.Nil, fmt.Errorf("failed to start run log: %w", err)
	}
	return id, nil
}

func completeRun(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, processed, created, updated, failed int) error {
	_, err := pool.Exec(ctx, `
		UPDATE parking.etl_processing_log
		SET status = 'completed', completed_at = now(),
		    records_processed = $2, records_created = $3, records_updated = $4, records_failed = $5
		WHERE id = $1 AND status = 'running'`,
		runID, processed, created, updated, failed)
	if err != nil {
		return fmt.Errorf("failed to complete run log: %w", err)
	}
	return nil
}

func failRun(ctx context.Context, pool *pgxpool.Pool, runID uuid.UUID, processed, created, failed int, msg string) error {
	_, err := pool.Exec(ctx, `
		UPDATE parking.etl_processing_log
		SET status = 'failed', completed_at = now(),
		    records_processed = $2, records_created = $3, records_updated = 0, records_failed = $4,
		    error_message = $5
		WHERE id = $1 AND status = 'running'`,
		runID, processed, created, failed, msg)
	if err != nil {
		return fmt.Errorf("failed to fail run log: %w", err)
	}
	return nil
}

// ReapStaleRuns fails running log rows older than maxAge. A crash between
// startRun and completion leaves the row running forever and blocks every
// later run for that file; the cron job calls this to clear them.
func ReapStaleRuns(ctx context.Context, pool *pgxpool.Pool, maxAge time.Duration) (int64, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE parking.etl_processing_log
		SET status = 'failed', completed_at = now(),
		    error_message = 'run exceeded maximum age and was reaped'
		WHERE status = 'running' AND started_at < now() - $1::interval`,
		fmt.Sprintf("%d minutes", int(maxAge.Minutes())))
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunLogsForFile returns the run history of one file, newest first.
func RunLogsForFile(ctx context.Context, pool *pgxpool.Pool, fileID uuid.UUID) ([]RunLog, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, source_table, source_file_id, run_date, status, started_at, completed_at,
		       records_processed, records_created, records_updated, records_failed,
		       COALESCE(error_message, ''), COALESCE(triggered_by, '')
		FROM parking.etl_processing_log
		WHERE source_file_id = $1
		ORDER BY started_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run logs: %w", err)
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		if err := rows.Scan(&l.ID, &l.SourceTable, &l.SourceFileID, &l.RunDate, &l.Status,
			&l.StartedAt, &l.CompletedAt, &l.RecordsProcessed, &l.RecordsCreated,
			&l.RecordsUpdated, &l.RecordsFailed, &l.ErrorMessage, &l.TriggeredBy); err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
