package datalake

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ParkRevLake/api/utils"
)

// FileStatus is the derived processing state of one uploaded file. Status
// is never stored; it is computed from the file row, its run log and the
// promoted ledger rows, so it cannot drift from reality.
type FileStatus struct {
	FileID           uuid.UUID  `json:"file_id"`
	OriginalFilename string     `json:"original_filename"`
	SourceType       SourceType `json:"source_type"`
	ReportDate       *time.Time `json:"report_date,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	Staged           bool       `json:"staged"`
	RecordsProcessed *int       `json:"records_processed,omitempty"`
	RecordsCreated   int        `json:"records_created"`
	RecordsRejected  int        `json:"records_rejected"`
	Status           string     `json:"status"`
	PercentComplete  float64    `json:"percent_complete"`
	NeedsETL         bool       `json:"needs_etl"`
	CanProcess       bool       `json:"can_process"`
}

// DeriveStatus folds run log aggregates into the per-file status. A running
// log wins over everything: whatever history says, work is happening now.
// Staged rows with nothing promoted derive not_complete whether or not a
// run has happened; the rows are waiting either way.
func DeriveStatus(staged bool, processed *int, hasRunning, hasCompleted, hasFailed bool, created int) string {
	if !staged || processed == nil {
		return StatusNotStarted
	}
	if hasRunning {
		return StatusInProgress
	}
	if *processed > 0 && created >= *processed {
		return StatusComplete
	}
	if created > 0 {
		return StatusNotComplete
	}
	if hasFailed {
		return StatusFailed
	}
	if hasCompleted {
		return StatusComplete
	}
	return StatusNotComplete
}

// PercentComplete is promoted rows over staged rows, in percent.
func PercentComplete(processed *int, created int) float64 {
	if processed == nil || *processed <= 0 {
		return 0
	}
	return float64(created) / float64(*processed) * 100
}

const fileStatusSelect = `
	SELECT f.id, f.original_filename, f.source_type, f.report_date, f.uploaded_at,
	       f.is_processed, f.records_processed,
	       COALESCE(MAX(CASE WHEN l.status = 'running'   THEN 1 ELSE 0 END), 0) AS has_running,
	       COALESCE(MAX(CASE WHEN l.status = 'completed' THEN 1 ELSE 0 END), 0) AS has_completed,
	       COALESCE(MAX(CASE WHEN l.status = 'failed'    THEN 1 ELSE 0 END), 0) AS has_failed,
	       (SELECT count(*) FROM parking.transactions t WHERE t.source_file_id = f.id) AS records_created,
	       (SELECT count(*) FROM parking.etl_rejects r WHERE r.source_file_id = f.id)  AS records_rejected
	FROM parking.uploaded_files f
	LEFT JOIN parking.etl_processing_log l ON l.source_file_id = f.id`

func scanFileStatus(row interface{ Scan(...interface{}) error }) (FileStatus, error) {
	var fs FileStatus
	var src string
	var hasRunning, hasCompleted, hasFailed int
	err := row.Scan(&fs.FileID, &fs.OriginalFilename, &src, &fs.ReportDate, &fs.UploadedAt,
		&fs.Staged, &fs.RecordsProcessed,
		&hasRunning, &hasCompleted, &hasFailed,
		&fs.RecordsCreated, &fs.RecordsRejected)
	if err != nil {
		return FileStatus{}, err
	}
	fs.SourceType = SourceType(src)
	fs.Status = DeriveStatus(fs.Staged, fs.RecordsProcessed, hasRunning == 1, hasCompleted == 1, hasFailed == 1, fs.RecordsCreated)
	fs.PercentComplete = PercentComplete(fs.RecordsProcessed, fs.RecordsCreated)
	fs.NeedsETL = fs.RecordsProcessed != nil && *fs.RecordsProcessed > 0 && fs.RecordsCreated < *fs.RecordsProcessed
	fs.CanProcess = fs.Staged && hasRunning == 0 && fs.SourceType != SourceOther
	return fs, nil
}

// GetFileStatus derives the status of one file.
func GetFileStatus(db *sql.DB, fileID uuid.UUID) (FileStatus, error) {
	query := fileStatusSelect + `
	WHERE f.id = $1
	GROUP BY f.id`
	fs, err := scanFileStatus(db.QueryRow(query, fileID))
	if err != nil {
		if err == sql.ErrNoRows {
			return FileStatus{}, ErrFileNotFound
		}
		return FileStatus{}, fmt.Errorf("failed to derive file status: %w", err)
	}
	return fs, nil
}

// statusSortColumns whitelists sortable columns. Sort input is mapped, never
// interpolated, so callers cannot inject SQL through the sort parameter.
var statusSortColumns = map[string]string{
	"uploaded_at":       "f.uploaded_at",
	"original_filename": "f.original_filename",
	"source_type":       "f.source_type",
	"report_date":       "f.report_date",
	"records_processed": "f.records_processed",
}

// StatusListFilter narrows and orders the status listing.
type StatusListFilter struct {
	SourceType string
	SortBy     string
	Descending bool
	Limit      int
	Offset     int
}

// ListFileStatuses derives statuses for a page of files.
func ListFileStatuses(db *sql.DB, filter StatusListFilter) ([]FileStatus, int, error) {
	var where []string
	var args []interface{}
	if filter.SourceType != "" {
		if _, err := ParseSourceType(filter.SourceType); err != nil {
			return nil, 0, err
		}
		args = append(args, filter.SourceType)
		where = append(where, fmt.Sprintf("f.source_type = $%d", len(args)))
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "\n\tWHERE " + strings.Join(where, " AND ")
	}

	total, err := utils.CountTotal(db, "SELECT count(*) FROM parking.uploaded_files f"+whereClause, args...)
	if err != nil {
		return nil, 0, err
	}

	sortCol, ok := statusSortColumns[filter.SortBy]
	if !ok {
		sortCol = "f.uploaded_at"
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	args = append(args, filter.Limit, filter.Offset)
	query := fileStatusSelect + whereClause + fmt.Sprintf(`
	GROUP BY f.id
	ORDER BY %s %s
	LIMIT $%d OFFSET $%d`, sortCol, direction, len(args)-1, len(args))

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("status query failed: %w", err)
	}
	defer rows.Close()

	statuses := make([]FileStatus, 0)
	for rows.Next() {
		fs, err := scanFileStatus(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan file status: %w", err)
		}
		statuses = append(statuses, fs)
	}
	return statuses, total, rows.Err()
}

// ListPendingETL returns staged files that still have unpromoted rows and
// no run currently in flight.
func ListPendingETL(db *sql.DB) ([]FileStatus, error) {
	query := fileStatusSelect + `
	WHERE f.is_processed = true AND f.source_type <> 'other'
	GROUP BY f.id
	ORDER BY f.uploaded_at`
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("pending query failed: %w", err)
	}
	defer rows.Close()

	pending := make([]FileStatus, 0)
	for rows.Next() {
		fs, err := scanFileStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file status: %w", err)
		}
		if fs.NeedsETL && fs.CanProcess {
			pending = append(pending, fs)
		}
	}
	return pending, rows.Err()
}
