package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Publisher delivers events to the live connections of a session.
// Delivery is best-effort; implementations must not block on a single slow recipient
// indefinitely and must not fail the caller.
type Publisher interface {
	Broadcast(ctx context.Context, sessionID int64, event any)
}

// CoordinatorConfig holds tunables for a Coordinator. Zero values select defaults.
type CoordinatorConfig struct {
	// JoinCodeLength defaults to DefaultJoinCodeLength.
	JoinCodeLength int
	// LockTimeout bounds waiting for a session lock; zero waits until ctx is done.
	LockTimeout time.Duration
	// Pool defaults to Continents.
	Pool []Continent
	// Source defaults to NewCryptoSource().
	Source Source
}

// Coordinator orchestrates session lifecycle operations.
//
// Roster mutations of one session are serialized by that session's lock; mutations
// of different sessions run concurrently. Events are published only after the
// mutation commits and after the lock is released.
type Coordinator struct {
	store       Store
	locks       *LockRegistry
	events      Publisher
	src         Source
	pool        []Continent
	codeLen     int
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewCoordinator creates a Coordinator.
//
// Precondition: store, events, and logger must be non-nil.
func NewCoordinator(store Store, events Publisher, logger *zap.Logger, cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		store:       store,
		locks:       NewLockRegistry(),
		events:      events,
		src:         cfg.Source,
		pool:        cfg.Pool,
		codeLen:     cfg.JoinCodeLength,
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
	}
	if c.src == nil {
		c.src = NewCryptoSource()
	}
	if len(c.pool) == 0 {
		c.pool = Continents
	}
	if c.codeLen <= 0 {
		c.codeLen = DefaultJoinCodeLength
	}
	return c
}

// Locks exposes the coordinator's lock registry.
func (c *Coordinator) Locks() *LockRegistry {
	return c.locks
}

// Create stores a new session together with its host participant.
//
// No lock is taken: nothing can reference the session before the transaction commits.
//
// Postcondition: Returns the committed session with stage 0 and the host as its
// only participant, or InvalidName if either name is blank after trimming.
func (c *Coordinator) Create(ctx context.Context, name, hostName string) (*Session, error) {
	name, hostName = strings.TrimSpace(name), strings.TrimSpace(hostName)
	if name == "" {
		return nil, errInvalidName("Game name must not be blank")
	}
	if hostName == "" {
		return nil, errInvalidName("Player name must not be blank")
	}

	var out *Session
	err := c.store.WithTx(ctx, func(tx Tx) error {
		s := &Session{Name: name, HostName: hostName}
		for {
			code, err := c.uniqueJoinCode(ctx, tx)
			if err != nil {
				return err
			}
			s.JoinCode = code
			err = tx.InsertSession(ctx, s)
			if errors.Is(err, ErrJoinCodeConflict) {
				c.logger.Debug("join code collided on insert, regenerating", zap.String("join_code", code))
				continue
			}
			if err != nil {
				return fmt.Errorf("inserting session: %w", err)
			}
			break
		}

		continent, err := Assign(nil, c.pool, c.src)
		if err != nil {
			return err
		}
		host := &Participant{SessionID: s.ID, Name: hostName, IsHost: true, Continent: continent}
		if err := tx.InsertParticipant(ctx, host); err != nil {
			return fmt.Errorf("inserting host participant: %w", err)
		}
		s.Participants = []Participant{*host}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("session created",
		zap.Int64("session_id", out.ID),
		zap.String("join_code", out.JoinCode),
		zap.String("host", hostName),
	)
	return out, nil
}

func (c *Coordinator) uniqueJoinCode(ctx context.Context, tx Tx) (string, error) {
	for {
		code := GenerateJoinCode(c.src, c.codeLen)
		exists, err := tx.JoinCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking join code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
}

// Join adds displayName to the session identified by joinCode and assigns it a
// free continent.
//
// Postcondition: Returns the refreshed session, or an InvalidName, InvalidJoinCode,
// NameTaken, or ResourceExhausted error with session state unchanged.
func (c *Coordinator) Join(ctx context.Context, joinCode, displayName string) (*Session, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, errInvalidName("Player name must not be blank")
	}
	code := NormalizeJoinCode(joinCode)
	if !ValidJoinCode(code, c.codeLen) {
		return nil, errInvalidJoinCode()
	}

	var sessionID int64
	err := c.store.WithTx(ctx, func(tx Tx) error {
		s, err := tx.SessionByJoinCode(ctx, code)
		if errors.Is(err, ErrNoRows) {
			return errInvalidJoinCode()
		}
		if err != nil {
			return fmt.Errorf("resolving join code: %w", err)
		}
		sessionID = s.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var (
		joined Participant
		out    *Session
	)
	err = c.withSessionLock(ctx, sessionID, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			s, err := tx.SessionByID(ctx, sessionID)
			if errors.Is(err, ErrNoRows) {
				return errInvalidJoinCode()
			}
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}

			_, err = tx.ParticipantByName(ctx, sessionID, displayName)
			if err == nil {
				return errNameTaken()
			}
			if !errors.Is(err, ErrNoRows) {
				return fmt.Errorf("checking participant name: %w", err)
			}

			p, err := c.assignAndInsert(ctx, tx, sessionID, displayName)
			if err != nil {
				return err
			}
			joined = *p

			if s.Participants, err = tx.Participants(ctx, sessionID); err != nil {
				return fmt.Errorf("listing participants: %w", err)
			}
			out = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("participant joined",
		zap.Int64("session_id", sessionID),
		zap.String("name", displayName),
		zap.String("continent", string(joined.Continent)),
	)
	c.publish(ctx, sessionID, Event{Type: EventParticipantJoined, Data: joined})
	return out, nil
}

// assignAndInsert retries on continent conflicts from writers outside this
// coordinator's lock discipline, at most once per pool entry.
func (c *Coordinator) assignAndInsert(ctx context.Context, tx Tx, sessionID int64, name string) (*Participant, error) {
	for attempt := 0; attempt < len(c.pool); attempt++ {
		taken, err := tx.TakenContinents(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("reading taken continents: %w", err)
		}
		continent, err := Assign(taken, c.pool, c.src)
		if err != nil {
			return nil, err
		}

		p := &Participant{SessionID: sessionID, Name: name, Continent: continent}
		err = tx.InsertParticipant(ctx, p)
		switch {
		case err == nil:
			return p, nil
		case errors.Is(err, ErrContinentConflict):
			c.logger.Warn("continent conflict on insert, retrying",
				zap.Int64("session_id", sessionID),
				zap.String("continent", string(continent)),
				zap.Int("attempt", attempt+1),
			)
		case errors.Is(err, ErrNameConflict):
			return nil, errNameTaken()
		default:
			return nil, fmt.Errorf("inserting participant: %w", err)
		}
	}
	return nil, errResourceExhausted()
}

// Leave removes a non-host participant from the session, freeing their continent.
//
// Postcondition: Returns the refreshed session, or NotFound / NotAuthorized.
func (c *Coordinator) Leave(ctx context.Context, sessionID int64, displayName string) (*Session, error) {
	var (
		left Participant
		out  *Session
	)
	err := c.withSessionLock(ctx, sessionID, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			s, err := tx.SessionByID(ctx, sessionID)
			if errors.Is(err, ErrNoRows) {
				return errNotFound("Game not found")
			}
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}

			p, err := tx.ParticipantByName(ctx, sessionID, displayName)
			if errors.Is(err, ErrNoRows) {
				return errNotFound("Player not found in this game")
			}
			if err != nil {
				return fmt.Errorf("loading participant: %w", err)
			}
			if p.IsHost {
				return errNotAuthorized("The host cannot leave the game")
			}
			if err := tx.DeleteParticipant(ctx, p.ID); err != nil {
				return fmt.Errorf("deleting participant: %w", err)
			}
			left = *p

			if s.Participants, err = tx.Participants(ctx, sessionID); err != nil {
				return fmt.Errorf("listing participants: %w", err)
			}
			out = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("participant left",
		zap.Int64("session_id", sessionID),
		zap.String("name", displayName),
		zap.String("continent", string(left.Continent)),
	)
	c.publish(ctx, sessionID, Event{Type: EventParticipantLeft, Data: left})
	return out, nil
}

// Advance increments the session's stage by exactly one.
//
// Postcondition: Returns the refreshed session, or NotFound.
func (c *Coordinator) Advance(ctx context.Context, sessionID int64) (*Session, error) {
	var out *Session
	err := c.withSessionLock(ctx, sessionID, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			s, err := tx.SessionByID(ctx, sessionID)
			if errors.Is(err, ErrNoRows) {
				return errNotFound("Invalid game ID")
			}
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			if s.Stage, err = tx.AdvanceStage(ctx, sessionID); err != nil {
				return fmt.Errorf("advancing stage: %w", err)
			}
			if s.Participants, err = tx.Participants(ctx, sessionID); err != nil {
				return fmt.Errorf("listing participants: %w", err)
			}
			out = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("stage advanced", zap.Int64("session_id", sessionID), zap.Int("stage", out.Stage))
	c.publish(ctx, sessionID, Event{
		Type: EventStageAdvanced,
		Data: StageAdvanced{Stage: out.Stage, Participants: out.Participants},
	})
	return out, nil
}

// Delete removes the session identified by joinCode and all of its participants.
// Only the recorded host may delete. Nothing is published.
//
// Postcondition: Returns the session as it was before deletion, or
// InvalidJoinCode / NotAuthorized with nothing deleted.
func (c *Coordinator) Delete(ctx context.Context, joinCode, requester string) (*Session, error) {
	code := NormalizeJoinCode(joinCode)
	if !ValidJoinCode(code, c.codeLen) {
		return nil, errInvalidJoinCode()
	}

	var sessionID int64
	err := c.store.WithTx(ctx, func(tx Tx) error {
		s, err := tx.SessionByJoinCode(ctx, code)
		if errors.Is(err, ErrNoRows) {
			return errInvalidJoinCode()
		}
		if err != nil {
			return fmt.Errorf("resolving join code: %w", err)
		}
		sessionID = s.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out *Session
	err = c.withSessionLock(ctx, sessionID, func() error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			s, err := tx.SessionByID(ctx, sessionID)
			if errors.Is(err, ErrNoRows) {
				return errInvalidJoinCode()
			}
			if err != nil {
				return fmt.Errorf("loading session: %w", err)
			}
			if s.HostName != requester {
				return errNotAuthorized("Only the host can delete the game")
			}
			if s.Participants, err = tx.Participants(ctx, sessionID); err != nil {
				return fmt.Errorf("listing participants: %w", err)
			}
			if err := tx.DeleteSession(ctx, sessionID); err != nil {
				return fmt.Errorf("deleting session: %w", err)
			}
			out = s
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("session deleted", zap.Int64("session_id", sessionID), zap.String("join_code", code))
	return out, nil
}

// Get returns a snapshot of the session.
//
// Postcondition: Returns the session with participants, or NotFound.
func (c *Coordinator) Get(ctx context.Context, sessionID int64) (*Session, error) {
	var out *Session
	err := c.store.WithTx(ctx, func(tx Tx) error {
		s, err := tx.SessionByID(ctx, sessionID)
		if errors.Is(err, ErrNoRows) {
			return errNotFound("Game not found")
		}
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if s.Participants, err = tx.Participants(ctx, sessionID); err != nil {
			return fmt.Errorf("listing participants: %w", err)
		}
		out = s
		return nil
	})
	return out, err
}

func (c *Coordinator) withSessionLock(ctx context.Context, sessionID int64, fn func() error) error {
	lockCtx := ctx
	if c.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}
	release, err := c.locks.Acquire(lockCtx, sessionID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// publish runs after commit; the caller's cancellation must not suppress it.
func (c *Coordinator) publish(ctx context.Context, sessionID int64, evt Event) {
	c.events.Broadcast(context.WithoutCancel(ctx), sessionID, evt)
}
