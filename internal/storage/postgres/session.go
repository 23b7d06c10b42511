package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

// SessionStore implements lobby.Store on PostgreSQL.
type SessionStore struct {
	db *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with migrations applied.
func NewSessionStore(db *pgxpool.Pool) *SessionStore {
	return &SessionStore{db: db}
}

// WithTx implements lobby.Store.
//
// Postcondition: fn's writes are committed if fn returns nil and rolled back otherwise.
func (s *SessionStore) WithTx(ctx context.Context, fn func(tx lobby.Tx) error) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&sessionTx{tx: tx})
	})
}

type sessionTx struct {
	tx pgx.Tx
}

// savepoint runs fn inside a nested transaction so a constraint violation rolls
// back only fn's statement and leaves the outer transaction usable.
func (t *sessionTx) savepoint(ctx context.Context, fn func(pgx.Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}
	if err := fn(sp); err != nil {
		_ = sp.Rollback(ctx)
		return translate(err)
	}
	return sp.Commit(ctx)
}

func (t *sessionTx) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE join_code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking join code: %w", err)
	}
	return exists, nil
}

func (t *sessionTx) InsertSession(ctx context.Context, s *lobby.Session) error {
	return t.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO sessions (name, host_name, join_code, stage)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			s.Name, s.HostName, s.JoinCode, s.Stage,
		).Scan(&s.ID, &s.CreatedAt)
	})
}

const selectSession = `SELECT id, name, host_name, join_code, stage, created_at FROM sessions`

func (t *sessionTx) scanSession(ctx context.Context, where string, arg any) (*lobby.Session, error) {
	var s lobby.Session
	err := t.tx.QueryRow(ctx, selectSession+" WHERE "+where+" = $1", arg).
		Scan(&s.ID, &s.Name, &s.HostName, &s.JoinCode, &s.Stage, &s.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (t *sessionTx) SessionByID(ctx context.Context, id int64) (*lobby.Session, error) {
	return t.scanSession(ctx, "id", id)
}

func (t *sessionTx) SessionByJoinCode(ctx context.Context, code string) (*lobby.Session, error) {
	return t.scanSession(ctx, "join_code", code)
}

func (t *sessionTx) Participants(ctx context.Context, sessionID int64) ([]lobby.Participant, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, session_id, name, is_host, continent, joined_at
		 FROM participants WHERE session_id = $1
		 ORDER BY joined_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	ps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lobby.Participant, error) {
		var p lobby.Participant
		var continent string
		err := row.Scan(&p.ID, &p.SessionID, &p.Name, &p.IsHost, &continent, &p.JoinedAt)
		p.Continent = lobby.Continent(continent)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning participants: %w", err)
	}
	return ps, nil
}

func (t *sessionTx) TakenContinents(ctx context.Context, sessionID int64) ([]lobby.Continent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT continent FROM participants WHERE session_id = $1 ORDER BY joined_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying continents: %w", err)
	}
	taken, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lobby.Continent, error) {
		var c string
		err := row.Scan(&c)
		return lobby.Continent(c), err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning continents: %w", err)
	}
	return taken, nil
}

func (t *sessionTx) ParticipantByName(ctx context.Context, sessionID int64, name string) (*lobby.Participant, error) {
	var p lobby.Participant
	var continent string
	err := t.tx.QueryRow(ctx,
		`SELECT id, session_id, name, is_host, continent, joined_at
		 FROM participants WHERE session_id = $1 AND name = $2`,
		sessionID, name,
	).Scan(&p.ID, &p.SessionID, &p.Name, &p.IsHost, &continent, &p.JoinedAt)
	if err != nil {
		return nil, translate(err)
	}
	p.Continent = lobby.Continent(continent)
	return &p, nil
}

func (t *sessionTx) InsertParticipant(ctx context.Context, p *lobby.Participant) error {
	return t.savepoint(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO participants (session_id, name, is_host, continent)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, joined_at`,
			p.SessionID, p.Name, p.IsHost, string(p.Continent),
		).Scan(&p.ID, &p.JoinedAt)
	})
}

func (t *sessionTx) DeleteParticipant(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting participant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lobby.ErrNoRows
	}
	return nil
}

func (t *sessionTx) AdvanceStage(ctx context.Context, sessionID int64) (int, error) {
	var stage int
	err := t.tx.QueryRow(ctx,
		`UPDATE sessions SET stage = stage + 1 WHERE id = $1 RETURNING stage`,
		sessionID,
	).Scan(&stage)
	if err != nil {
		return 0, translate(err)
	}
	return stage, nil
}

func (t *sessionTx) DeleteSession(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return lobby.ErrNoRows
	}
	return nil
}
