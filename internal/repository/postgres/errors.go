package postgres

import (
	"database/sql"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// wrapErr maps a driver error onto the application error sentinels
func wrapErr(err error, entity string, details map[string]any) error {
	if err == nil {
		return nil
	}
	if details == nil {
		details = map[string]any{}
	}

	if ierr.Is(err, sql.ErrNoRows) {
		return ierr.WithError(err).
			WithHintf("%s not found", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrNotFound)
	}

	var pqErr *pq.Error
	if ierr.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		details["constraint"] = pqErr.Constraint
		return ierr.WithError(err).
			WithHintf("%s already exists", entity).
			WithReportableDetails(details).
			Mark(ierr.ErrAlreadyExists)
	}

	return ierr.WithError(err).
		WithHintf("Failed to access %s", entity).
		WithReportableDetails(details).
		Mark(ierr.ErrDatabase)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return ierr.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}

// placeholders renders $n placeholders for a slice of values, appending them to args
func placeholders(args *[]interface{}, values ...interface{}) string {
	out := ""
	for i, v := range values {
		*args = append(*args, v)
		if i > 0 {
			out += ", "
		}
		out += "$" + itoa(len(*args))
	}
	return out
}

func nextArg(args *[]interface{}, v interface{}) string {
	*args = append(*args, v)
	return "$" + itoa(len(*args))
}
