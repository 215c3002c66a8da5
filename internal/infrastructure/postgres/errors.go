package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure,
// optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// requireAffected maps a write that touched no rows to notFound.
func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
