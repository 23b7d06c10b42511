package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

var constraintErrors = map[string]error{
	"sessions_join_code_key":             lobby.ErrJoinCodeConflict,
	"participants_session_name_key":      lobby.ErrNameConflict,
	"participants_session_continent_key": lobby.ErrContinentConflict,
}

// translate maps driver errors onto the lobby store sentinels. Errors it does
// not recognise are returned unchanged.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return lobby.ErrNoRows
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case sqlStateUniqueViolation:
		if sentinel, ok := constraintErrors[pgErr.ConstraintName]; ok {
			return sentinel
		}
	case sqlStateForeignKeyViolation:
		return lobby.ErrNoRows
	}
	return err
}
