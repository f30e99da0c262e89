package datalake

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies which upstream report a file came from. The set is
// closed: adding a source means adding a staging definition and a transform,
// and the exhaustive switches below will not compile around a missing case.
type SourceType string

const (
	SourceWindcave   SourceType = "windcave"
	SourcePISales    SourceType = "pi_sales"
	SourcePIPayments SourceType = "pi_payments"
	SourceIPSCC      SourceType = "ips_cc"
	SourceIPSMobile  SourceType = "ips_mobile"
	SourceIPSCash    SourceType = "ips_cash"
	SourceOther      SourceType = "other"
)

// AllSourceTypes lists the loadable sources, excluding SourceOther.
func AllSourceTypes() []SourceType {
	return []SourceType{
		SourceWindcave,
		SourcePISales,
		SourcePIPayments,
		SourceIPSCC,
		SourceIPSMobile,
		SourceIPSCash,
	}
}

// ParseSourceType validates a source key from a request or database row.
func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(s) {
	case SourceWindcave, SourcePISales, SourcePIPayments,
		SourceIPSCC, SourceIPSMobile, SourceIPSCash, SourceOther:
		return SourceType(s), nil
	}
	return "", fmt.Errorf("unknown source type %q", s)
}

// StagingTable returns the staging table for a source, without schema prefix.
func (s SourceType) StagingTable() (string, error) {
	switch s {
	case SourceWindcave:
		return "windcave_staging", nil
	case SourcePISales:
		return "pi_sales_staging", nil
	case SourcePIPayments:
		return "pi_payments_staging", nil
	case SourceIPSCC:
		return "ips_cc_staging", nil
	case SourceIPSMobile:
		return "ips_mobile_staging", nil
	case SourceIPSCash:
		return "ips_cash_staging", nil
	case SourceOther:
		return "", ErrUnknownSource
	}
	return "", fmt.Errorf("unknown source type %q", string(s))
}

// Payment types stored on ledger rows.
const (
	PaymentVisa       = "visa"
	PaymentMastercard = "mastercard"
	PaymentAmex       = "amex"
	PaymentDiscover   = "discover"
	PaymentCash       = "cash"
	PaymentMobile     = "mobile"
	PaymentOther      = "other"
)

// Location types stored on ledger rows.
const (
	LocationGarage           = "garage"
	LocationLot              = "lot"
	LocationSingleSpaceMeter = "single_space_meter"
	LocationMultiSpaceMeter  = "multi_space_meter"
	LocationSmartMeter       = "smart_meter"
	LocationOther            = "other"
)

// Run log statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run outcomes reported to callers.
const (
	OutcomeComplete   = "complete"
	OutcomeIncomplete = "incomplete"
	OutcomeFailed     = "failed"
)

// Derived per-file statuses.
const (
	StatusNotStarted  = "not_started"
	StatusInProgress  = "in_progress"
	StatusComplete    = "complete"
	StatusFailed      = "failed"
	StatusNotComplete = "not_complete"
)

// UploadedFile is a row of parking.uploaded_files.
type UploadedFile struct {
	ID               uuid.UUID  `json:"id"`
	OriginalFilename string     `json:"original_filename"`
	StoredPath       string     `json:"stored_path"`
	ChecksumSHA256   string     `json:"checksum_sha256"`
	SourceType       SourceType `json:"source_type"`
	ReportDate       *time.Time `json:"report_date,omitempty"`
	UploadedBy       string     `json:"uploaded_by,omitempty"`
	UploadedAt       time.Time  `json:"uploaded_at"`
	IsProcessed      bool       `json:"is_processed"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	RecordsProcessed *int       `json:"records_processed,omitempty"`
}

// RunResult summarises one ETL run.
type RunResult struct {
	RunID            uuid.UUID `json:"run_id"`
	Success          bool      `json:"success"`
	Outcome          string    `json:"outcome"`
	RecordsProcessed int       `json:"records_processed"`
	RecordsCreated   int       `json:"records_created"`
	RecordsUpdated   int       `json:"records_updated"`
	RecordsFailed    int       `json:"records_failed"`
	Message          string    `json:"message,omitempty"`
}

// Reject reasons written to parking.etl_rejects.
const (
	RejectNoDeviceAssignment = "no_device_assignment"
	RejectMissingAmount      = "missing_amount"
)

// Sentinel errors surfaced to HTTP handlers.
var (
	ErrFileNotFound      = errors.New("file not found")
	ErrFileNotStaged     = errors.New("file not loaded into staging")
	ErrFileAlreadyStaged = errors.New("file already loaded into staging")
	ErrRunInProgress     = errors.New("etl run already in progress")
	ErrUnknownSource     = errors.New("source type could not be determined")
	ErrNoTransform       = errors.New("no transform registered for source")
	ErrDuplicateFile     = errors.New("file already uploaded")
	ErrEmptyFile         = errors.New("file contains no data rows")
	ErrUnparsableFile    = errors.New("file could not be parsed")
	ErrBadHeaders        = errors.New("file headers do not match source layout")
)
