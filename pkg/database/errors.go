package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/Ramsey-B/fern/pkg/domainerrors"
)

// Postgres SQLSTATE codes the ledger relies on
const (
	pqUniqueViolation     = "23505"
	pqExclusionViolation  = "23P01"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
	pqSerialization       = "40001"
)

// TranslateError maps constraint violations onto domain error codes.
// Uniqueness and exclusion collisions come from concurrent writers and are retryable;
// foreign key and check violations are invariant breaches.
func TranslateError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domainerrors.Wrap(err, domainerrors.CodeNotFound, message)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation, pqExclusionViolation, pqSerialization:
			return domainerrors.Wrap(err, domainerrors.CodeConcurrentWriteConflict, message)
		case pqForeignKeyViolation, pqCheckViolation:
			return domainerrors.Wrap(err, domainerrors.CodeValidation, message)
		}
	}
	return domainerrors.Wrap(err, domainerrors.CodeInternal, message)
}

// ConstraintName returns the violated constraint, if any
func ConstraintName(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint
	}
	return ""
}
