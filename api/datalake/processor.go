package datalake

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/internal/logger"
)

// Processor promotes staging rows into the transaction ledger. Promotion is
// a single set-oriented SQL statement per run, executed in one transaction:
// either the ledger rows, the promoted flags and the rejects all land, or
// none do.
type Processor struct {
	pool  *pgxpool.Pool
	cache *LookupCache
}

func NewProcessor(pool *pgxpool.Pool, cache *LookupCache) *Processor {
	return &Processor{pool: pool, cache: cache}
}

// RunEvent is one progress notification for streaming consumers.
type RunEvent struct {
	Stage   string     `json:"stage"`
	Message string     `json:"message,omitempty"`
	Result  *RunResult `json:"result,omitempty"`
	Time    time.Time  `json:"time"`
}

// Run processes one staged file. The run log row doubles as the concurrency
// guard; callers racing on the same file get ErrRunInProgress.
func (p *Processor) Run(ctx context.Context, fileID uuid.UUID, triggeredBy string) (RunResult, error) {
	return p.run(ctx, fileID, triggeredBy, nil)
}

// RunWithEvents is Run with progress events. The events channel is closed
// when the run finishes, whatever the outcome.
func (p *Processor) RunWithEvents(ctx context.Context, fileID uuid.UUID, triggeredBy string, events chan<- RunEvent) (RunResult, error) {
	defer close(events)
	return p.run(ctx, fileID, triggeredBy, events)
}

func (p *Processor) run(ctx context.Context, fileID uuid.UUID, triggeredBy string, events chan<- RunEvent) (RunResult, error) {
	file, err := GetUploadedFile(ctx, p.pool, fileID)
	if err != nil {
		return RunResult{}, err
	}
	if !file.IsProcessed {
		return RunResult{}, ErrFileNotStaged
	}
	if file.SourceType == SourceOther {
		return RunResult{}, ErrUnknownSource
	}
	transform, err := transformFor(file.SourceType)
	if err != nil {
		return RunResult{}, err
	}
	table := transform.table

	runID, err := startRun(ctx, p.pool, table, &file.ID, nil, triggeredBy)
	if err != nil {
		return RunResult{}, err
	}
	emit(events, RunEvent{Stage: "started", Message: fmt.Sprintf("run %s started for %s", runID, file.OriginalFilename), Time: time.Now()})

	if !p.cache.IsReady() {
		log.Printf("[Datalake] Lookup cache not ready, run %s joins reference tables cold", runID)
		emit(events, RunEvent{Stage: "warning", Message: "lookup cache not ready", Time: time.Now()})
	}

	result, err := p.execute(ctx, runID, transform.FileSQL(), file.ID)
	result.RunID = runID
	if err != nil {
		return result, err
	}
	emit(events, RunEvent{Stage: "finished", Result: &result, Time: time.Now()})
	logger.Audit(fmt.Sprintf("ETL run %s on %s: outcome=%s processed=%d created=%d failed=%d",
		runID, table, result.Outcome, result.RecordsProcessed, result.RecordsCreated, result.RecordsFailed))
	return result, nil
}

// RunForDate processes all unpromoted rows of a source for one business
// date, regardless of which file they arrived in. Used for meter collection
// routes that trickle in across several uploads.
func (p *Processor) RunForDate(ctx context.Context, src SourceType, date time.Time, triggeredBy string) (RunResult, error) {
	transform, err := transformFor(src)
	if err != nil {
		return RunResult{}, err
	}
	date = stagingDate(date)

	runID, err := startRun(ctx, p.pool, transform.table, nil, &date, triggeredBy)
	if err != nil {
		return RunResult{}, err
	}

	result, err := p.execute(ctx, runID, transform.DateSQL(), date)
	result.RunID = runID
	if err != nil {
		return result, err
	}
	logger.Audit(fmt.Sprintf("ETL date run %s on %s for %s: outcome=%s processed=%d created=%d failed=%d",
		runID, transform.table, date.Format("2006-01-02"), result.Outcome,
		result.RecordsProcessed, result.RecordsCreated, result.RecordsFailed))
	return result, nil
}

// execute runs the promotion statement and settles the run log from its
// counts. A SQL failure rolls the whole promotion back and fails the log.
func (p *Processor) execute(ctx context.Context, runID uuid.UUID, sqlText string, scopeArg interface{}) (RunResult, error) {
	var result RunResult

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		p.failAndLog(ctx, runID, result, err)
		return result, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, sqlText, scopeArg).Scan(
		&result.RecordsProcessed, &result.RecordsCreated, &result.RecordsFailed); err != nil {
		p.failAndLog(ctx, runID, result, err)
		return result, fmt.Errorf("promotion failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		p.failAndLog(ctx, runID, result, err)
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}

	result.Outcome = ClassifyOutcome(result.RecordsProcessed, result.RecordsCreated, result.RecordsFailed)
	switch result.Outcome {
	case OutcomeFailed:
		result.Message = fmt.Sprintf("all %d eligible rows rejected", result.RecordsFailed)
		if err := failRun(ctx, p.pool, runID, result.RecordsProcessed, result.RecordsCreated, result.RecordsFailed, result.Message); err != nil {
			return result, err
		}
	default:
		result.Success = true
		if err := completeRun(ctx, p.pool, runID, result.RecordsProcessed, result.RecordsCreated, result.RecordsUpdated, result.RecordsFailed); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Processor) failAndLog(ctx context.Context, runID uuid.UUID, result RunResult, cause error) {
	log.Printf("[Datalake] Run %s failed: %v", runID, cause)
	if err := failRun(ctx, p.pool, runID, result.RecordsProcessed, result.RecordsCreated, result.RecordsFailed, cause.Error()); err != nil {
		log.Printf("[Datalake] Could not settle run log %s: %v", runID, err)
	}
}

// ClassifyOutcome maps run counts to an outcome. Zero eligible rows is a
// complete run: everything promotable already was.
func ClassifyOutcome(processed, created, failed int) string {
	switch {
	case processed == 0:
		return OutcomeComplete
	case created == 0 && failed > 0:
		return OutcomeFailed
	case failed > 0:
		return OutcomeIncomplete
	default:
		return OutcomeComplete
	}
}

func emit(events chan<- RunEvent, ev RunEvent) {
	if events == nil {
		return
	}
	events <- ev
}

// GetUploadedFile fetches one file registry row.
func GetUploadedFile(ctx context.Context, pool *pgxpool.Pool, id uuid.UUID) (*UploadedFile, error) {
	var f UploadedFile
	var src string
	err := pool.QueryRow(ctx, `
		SELECT id, original_filename, stored_path, checksum_sha256, source_type,
		       report_date, COALESCE(uploaded_by, ''), uploaded_at,
		       is_processed, processed_at, records_processed
		FROM parking.uploaded_files WHERE id = $1`, id).Scan(
		&f.ID, &f.OriginalFilename, &f.StoredPath, &f.ChecksumSHA256, &src,
		&f.ReportDate, &f.UploadedBy, &f.UploadedAt,
		&f.IsProcessed, &f.ProcessedAt, &f.RecordsProcessed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to load file %s: %w", id, err)
	}
	f.SourceType = SourceType(src)
	return &f, nil
}
