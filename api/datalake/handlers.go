package datalake

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ParkRevLake/api"
	"ParkRevLake/api/constants"
	"ParkRevLake/api/utils"
	"ParkRevLake/internal/checksum"
	"ParkRevLake/internal/config"
)

var allowedExtensions = map[string]bool{
	".csv":  true,
	".xlsx": true,
	".xls":  true,
}

// UploadHandler registers a report file: classify, checksum, store to disk,
// insert the registry row. Staging and ETL are separate calls.
func UploadHandler(pool *pgxpool.Pool, uploadDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := api.RequireRole(w, r, api.RoleAdmin, api.RoleFinance)
		if !ok {
			return
		}

		if err := r.ParseMultipartForm(config.MaxUploadBytes); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileTooLarge)
			return
		}
		src, header, err := r.FormFile("file")
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileUploadFailed)
			return
		}
		defer src.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !allowedExtensions[ext] {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileFormat)
			return
		}

		data, err := io.ReadAll(io.LimitReader(src, config.MaxUploadBytes+1))
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileUploadFailed)
			return
		}
		if int64(len(data)) > config.MaxUploadBytes {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileTooLarge)
			return
		}
		if len(data) == 0 {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrEmptyFile)
			return
		}

		digest := checksum.Digest(data)
		sourceType := ClassifySource(header.Filename)
		// Operators can override classification when a vendor renames an export
		if v := r.FormValue("source_type"); v != "" {
			src, err := ParseSourceType(v)
			if err != nil {
				api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnknownSource)
				return
			}
			sourceType = src
		}
		uploadedAt := time.Now()
		reportDate := ExtractReportDate(header.Filename, uploadedAt)

		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrFileUploadFailed)
			return
		}
		storedPath := filepath.Join(uploadDir, fmt.Sprintf("%s_%s", uploadedAt.Format("20060102150405"), filepath.Base(header.Filename)))
		if err := os.WriteFile(storedPath, data, 0644); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrFileUploadFailed)
			return
		}

		var id uuid.UUID
		err = pool.QueryRow(r.Context(), `
			INSERT INTO parking.uploaded_files
			    (original_filename, stored_path, checksum_sha256, source_type, report_date, uploaded_by)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			header.Filename, storedPath, digest, string(sourceType), reportDate, p.UserID).Scan(&id)
		if err != nil {
			os.Remove(storedPath)
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				api.RespondWithError(w, http.StatusConflict, constants.ErrDuplicateFile)
				return
			}
			api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
			return
		}

		api.LogInfo("Uploaded %s as %s (source=%s) by %s", header.Filename, id, sourceType, p.UserID)
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"file_id":           id,
			"original_filename": header.Filename,
			"source_type":       sourceType,
			"report_date":       reportDate.Format(constants.DateFormat),
			"checksum_sha256":   digest,
		})
	}
}

// LoadStagingHandler parses a registered file into its staging table.
func LoadStagingHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireRole(w, r, api.RoleAdmin, api.RoleFinance); !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}

		file, err := GetUploadedFile(r.Context(), pool, fileID)
		if err != nil {
			respondDatalakeError(w, err)
			return
		}
		if file.SourceType == SourceOther {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnknownSource)
			return
		}

		n, err := LoadStaging(r.Context(), pool, file)
		if err != nil {
			respondDatalakeError(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"file_id":        fileID,
			"source_type":    file.SourceType,
			"records_staged": n,
		})
	}
}

// ProcessETLHandler promotes one staged file into the ledger.
func ProcessETLHandler(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := api.RequireRole(w, r, api.RoleAdmin, api.RoleFinance)
		if !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}

		result, err := NewProcessor(pool, cache).Run(r.Context(), fileID, p.UserID)
		if err != nil {
			respondDatalakeError(w, err)
			return
		}
		api.RespondWithPayload(w, result.Success, result.Message, result)
	}
}

// ProcessETLByDateHandler promotes all unpromoted rows of a source for one
// business date.
func ProcessETLByDateHandler(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	type request struct {
		SourceType string `json:"source_type"`
		Date       string `json:"date"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := api.RequireRole(w, r, api.RoleAdmin, api.RoleFinance)
		if !ok {
			return
		}
		var req request
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		src, err := ParseSourceType(req.SourceType)
		if err != nil || src == SourceOther {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnknownSource)
			return
		}
		date, err := time.Parse(constants.DateFormat, req.Date)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", req.Date))
			return
		}

		result, err := NewProcessor(pool, cache).RunForDate(r.Context(), src, date, p.UserID)
		if err != nil {
			respondDatalakeError(w, err)
			return
		}
		api.RespondWithPayload(w, result.Success, result.Message, result)
	}
}

// FileStatusHandler derives the status of one file.
func FileStatusHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}
		fs, err := GetFileStatus(db, fileID)
		if err != nil {
			respondDatalakeError(w, err)
			return
		}
		api.RespondWithPayload(w, true, "", fs)
	}
}

// ListFileStatusesHandler lists derived statuses with pagination and a
// whitelisted sort.
func ListFileStatusesHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		pagination, err := utils.ExtractPagination(r)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter := StatusListFilter{
			SourceType: r.URL.Query().Get("source_type"),
			SortBy:     r.URL.Query().Get("sort_by"),
			Descending: !strings.EqualFold(r.URL.Query().Get("order"), "asc"),
			Limit:      pagination.Limit,
			Offset:     pagination.Offset,
		}
		statuses, total, err := ListFileStatuses(db, filter)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		pagination.SetPaginationStats(total)
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"files":      statuses,
			"pagination": pagination,
		})
	}
}

// PendingETLHandler lists staged files that still need a run.
func PendingETLHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		pending, err := ListPendingETL(db)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, constants.ErrDB)
			return
		}
		api.RespondWithPayload(w, true, "", pending)
	}
}

// RunLogsHandler returns the run history of one file.
func RunLogsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}
		logs, err := RunLogsForFile(r.Context(), pool, fileID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
			return
		}
		api.RespondWithPayload(w, true, "", logs)
	}
}

// RejectsHandler lists the rejects of one file.
func RejectsHandler(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}
		rejects, err := ListRejects(r.Context(), pool, cache, fileID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
			return
		}
		api.RespondWithPayload(w, true, "", rejects)
	}
}

// RequeueRejectsHandler clears a file's rejects so the next run retries them.
func RequeueRejectsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := api.RequireRole(w, r, api.RoleAdmin, api.RoleFinance)
		if !ok {
			return
		}
		fileID, err := uuid.Parse(mux.Vars(r)["id"])
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidFileID)
			return
		}
		n, err := RequeueRejects(r.Context(), pool, fileID)
		if err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
			return
		}
		api.LogInfo("Requeued %d rejects for file %s by %s", n, fileID, p.UserID)
		api.RespondWithPayload(w, true, "", map[string]interface{}{"requeued": n})
	}
}

// SearchTransactionsHandler searches the ledger.
func SearchTransactionsHandler(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		var filter TransactionFilter
		if err := decodeJSON(r, &filter); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		results, total, err := SearchTransactions(r.Context(), pool, cache, filter)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"transactions": results,
			"total":        total,
		})
	}
}

// SummarizeTransactionsHandler aggregates ledger revenue.
func SummarizeTransactionsHandler(pool *pgxpool.Pool) http.HandlerFunc {
	type request struct {
		GroupBy string            `json:"group_by"`
		Filter  TransactionFilter `json:"filter"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		var req request
		if err := decodeJSON(r, &req); err != nil {
			api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidJSON)
			return
		}
		if req.GroupBy == "" {
			req.GroupBy = "source_type"
		}
		results, grandTotal, err := SummarizeTransactions(r.Context(), pool, req.GroupBy, req.Filter)
		if err != nil {
			api.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.RespondWithPayload(w, true, "", map[string]interface{}{
			"group_by":    req.GroupBy,
			"buckets":     results,
			"grand_total": grandTotal,
		})
	}
}

// CacheStatusHandler reports lookup cache readiness and sizes.
func CacheStatusHandler(cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := api.RequireUser(w, r); !ok {
			return
		}
		api.RespondWithPayload(w, true, "", cache.Stats())
	}
}

// CacheRebuildHandler reloads reference data on demand.
func CacheRebuildHandler(pool *pgxpool.Pool, cache *LookupCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := api.RequireRole(w, r, api.RoleAdmin)
		if !ok {
			return
		}
		if err := cache.Initialize(r.Context(), pool); err != nil {
			api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
			return
		}
		api.LogInfo("Lookup cache rebuilt by %s", p.UserID)
		api.RespondWithPayload(w, true, "", cache.Stats())
	}
}

// respondDatalakeError maps sentinel errors onto HTTP statuses.
func respondDatalakeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFileNotFound):
		api.RespondWithError(w, http.StatusNotFound, constants.ErrFileNotFound)
	case errors.Is(err, ErrRunInProgress):
		api.RespondWithError(w, http.StatusConflict, constants.ErrRunInProgress)
	case errors.Is(err, ErrFileAlreadyStaged):
		api.RespondWithError(w, http.StatusConflict, constants.ErrFileAlreadyStaged)
	case errors.Is(err, ErrFileNotStaged):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileNotStaged)
	case errors.Is(err, ErrUnknownSource):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrUnknownSource)
	case errors.Is(err, ErrNoTransform):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrNoTransform)
	case errors.Is(err, ErrEmptyFile):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrEmptyFile)
	case errors.Is(err, ErrUnparsableFile):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrFileParsingFailed)
	case errors.Is(err, ErrBadHeaders):
		api.RespondWithError(w, http.StatusBadRequest, constants.ErrInvalidHeaders)
	case errors.Is(err, ErrDuplicateFile):
		api.RespondWithError(w, http.StatusConflict, constants.ErrDuplicateFile)
	default:
		api.RespondWithError(w, http.StatusInternalServerError, friendlyPgMessage(err))
	}
}
