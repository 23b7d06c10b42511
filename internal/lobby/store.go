package lobby

import (
	"context"
	"errors"
)

// Sentinel errors reported by Store implementations.
var (
	// ErrNoRows is returned when a lookup matches nothing.
	ErrNoRows = errors.New("no rows")
	// ErrJoinCodeConflict is returned when a session insert collides on join code.
	ErrJoinCodeConflict = errors.New("join code already in use")
	// ErrNameConflict is returned when a participant insert collides on display name.
	ErrNameConflict = errors.New("participant name already in use")
	// ErrContinentConflict is returned when a participant insert collides on continent.
	ErrContinentConflict = errors.New("continent already assigned")
)

// Store runs transactions against the persistent session state.
type Store interface {
	// WithTx runs fn in a transaction, committing if fn returns nil and rolling
	// back otherwise.
	//
	// Postcondition: fn's writes are durable when WithTx returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the read/write surface available inside a Store transaction.
//
// Insert methods that report a conflict leave the transaction usable so the
// caller may retry with different values.
type Tx interface {
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	// InsertSession stores s and sets its ID and CreatedAt. Participants are ignored.
	InsertSession(ctx context.Context, s *Session) error
	// SessionByID returns the session without participants, or ErrNoRows.
	SessionByID(ctx context.Context, id int64) (*Session, error)
	// SessionByJoinCode returns the session without participants, or ErrNoRows.
	SessionByJoinCode(ctx context.Context, code string) (*Session, error)
	// Participants returns the session's participants ordered by join time.
	Participants(ctx context.Context, sessionID int64) ([]Participant, error)
	// TakenContinents returns the continents held in the session, in join order.
	TakenContinents(ctx context.Context, sessionID int64) ([]Continent, error)
	// ParticipantByName returns the named participant, or ErrNoRows.
	ParticipantByName(ctx context.Context, sessionID int64, name string) (*Participant, error)
	// InsertParticipant stores p and sets its ID and JoinedAt, or reports
	// ErrNameConflict / ErrContinentConflict.
	InsertParticipant(ctx context.Context, p *Participant) error
	DeleteParticipant(ctx context.Context, id int64) error
	// AdvanceStage increments the session's stage by one and returns the new value.
	AdvanceStage(ctx context.Context, sessionID int64) (int, error)
	// DeleteSession removes the session and all of its participants.
	DeleteSession(ctx context.Context, id int64) error
}
