package sqlite

import (
	"database/sql"
	"errors"
	"strings"
)

// isUniqueViolation reports whether err is a unique-constraint failure.
// The media table's hash index trips this when two ingests race on the
// same content; the driver surfaces it only as message text, in two
// phrasings depending on the statement.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

// isNoRows reports whether err means the query matched nothing.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
