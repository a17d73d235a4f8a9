package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"hemrs/app/src/domain"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
)

// sqlState extracts the SQLSTATE code from either supported driver.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapError translates driver errors into domain errors, keeping the
// original error in the chain.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("postgres store: %s: %w", op, domain.ErrNotFound)
	}
	switch sqlState(err) {
	case codeForeignKeyViolation:
		return fmt.Errorf("postgres store: %s: %w: %w", op, domain.ErrNotFound, err)
	case codeUniqueViolation:
		return fmt.Errorf("postgres store: %s: %w: %w", op, domain.ErrConflict, err)
	}
	return fmt.Errorf("postgres store: %s: %w", op, err)
}

// mapDeleteError treats a foreign key violation as a conflict: the row is
// still referenced.
func mapDeleteError(op string, err error) error {
	if sqlState(err) == codeForeignKeyViolation {
		return fmt.Errorf("postgres store: %s: %w: %w", op, domain.ErrConflict, err)
	}
	return mapError(op, err)
}
