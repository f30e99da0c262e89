package constants

// Common error messages
const (
	ErrInvalidJSON        = "invalid json or missing fields"
	ErrInvalidJSONShort   = "Invalid JSON"
	ErrMissingUserID      = "Missing X-User-ID header"
	ErrForbidden          = "You are not authorized to perform this action"
	ErrDB                 = "DB error"
	ErrInvalidRequestBody = "Invalid request body"
	ErrMethodNotAllowed   = "Method Not Allowed"
	ErrFileNotFound       = "File not found"
	ErrInvalidFileID      = "Invalid file id"
)

// File upload errors
const (
	ErrFileUploadFailed  = "File upload failed. Please check the file format and try again"
	ErrInvalidFileFormat = "Invalid file format. Please upload a CSV, XLS or XLSX file"
	ErrFileTooLarge      = "File size exceeds the maximum limit"
	ErrFileParsingFailed = "Failed to parse file contents. Please check the file format"
	ErrEmptyFile         = "Uploaded file is empty"
	ErrInvalidHeaders    = "File has invalid or missing column headers"
	ErrDuplicateFile     = "This file has already been uploaded"
)

// ETL errors
const (
	ErrFileNotStaged     = "File has not been loaded into staging yet"
	ErrFileAlreadyStaged = "File has already been loaded into staging"
	ErrRunInProgress     = "An ETL run is already in progress for this file"
	ErrUnknownSource     = "Could not determine the source type of this file"
	ErrNoTransform       = "No transform is registered for this source"
)

// Content types and headers
const (
	ContentTypeJSON                 = "application/json"
	ContentTypeText                 = "Content-Type"
	HeaderUserID                    = "X-User-ID"
	HeaderUserRole                  = "X-User-Role"
	HeaderAccessControlAllowOrigin  = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowHeaders = "Access-Control-Allow-Headers"
)

// Date formats
const (
	DateFormat = "2006-01-02"
)
