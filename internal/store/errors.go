package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Typed sentinels for the constraint violations callers are expected to
// handle. Classification happens here, against pgconn error codes and
// constraint names, so the app layer never matches on message text.
var (
	// ErrProviderAssignment means a care plan violated the provider rule:
	// provider_name must always be set; staff_id marks an internal provider.
	ErrProviderAssignment = errors.New("invalid provider assignment")
	// ErrDuplicateDisplayID means the human-facing care plan reference is taken.
	ErrDuplicateDisplayID = errors.New("duplicate care plan display id")
)

const (
	pgCheckViolation  = "23514"
	pgUniqueViolation = "23505"
)

func classifyConstraint(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.ConstraintName {
	case "care_plans_provider_assignment_check":
		return fmt.Errorf("%w: %s", ErrProviderAssignment, pgErr.Message)
	case "care_plans_display_id_key":
		return fmt.Errorf("%w: %s", ErrDuplicateDisplayID, pgErr.Message)
	}
	return err
}
