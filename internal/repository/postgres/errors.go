package postgres

import (
	"database/sql"
	"errors"

	ierr "github.com/clinicflow/clinicflow/internal/errors"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation
}

// notFound marks sql.ErrNoRows with a caller facing hint
func notFound(err error, hint string, details map[string]any) error {
	return ierr.WithError(err).
		WithHint(hint).
		WithReportableDetails(details).
		Mark(ierr.ErrNotFound)
}

// wrapQueryErr maps missing rows to not found and everything else to a database error
func wrapQueryErr(err error, op, hint string, details map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(err, hint, details)
	}
	return ierr.WithOp(err, op)
}
