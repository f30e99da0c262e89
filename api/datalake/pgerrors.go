package datalake

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// friendlyPgMessage converts common Postgres failures into messages an
// operator can act on without reading driver internals.
func friendlyPgMessage(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err.Error()
	}
	switch pgErr.Code {
	case "23505":
		return "A record with the same key already exists"
	case "23503":
		return "Operation references a record that does not exist"
	case "23502":
		return "A required value was missing"
	case "22P02":
		return "A value had the wrong format for its column"
	case "22003":
		return "A numeric value was out of range"
	case "42P01":
		return "A required table is missing, has the schema been applied?"
	case "57014":
		return "The query was cancelled"
	}
	return pgErr.Message
}
