package repository

import (
	"strings"
)

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// isUniqueViolation определяет нарушение уникального ограничения PostgreSQL (23505)
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}

// isForeignKeyViolation - нарушение внешнего ключа (23503)
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "23503")
}
