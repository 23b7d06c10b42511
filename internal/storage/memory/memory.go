// Package memory provides an in-process implementation of the lobby store
// contracts, used in standalone mode and in tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

type state struct {
	nextSessionID     int64
	nextParticipantID int64
	nextInvitationID  int64
	sessions          map[int64]lobby.Session
	participants      map[int64]lobby.Participant
	invitations       map[int64]lobby.Invitation
}

func (s *state) clone() *state {
	return &state{
		nextSessionID:     s.nextSessionID,
		nextParticipantID: s.nextParticipantID,
		nextInvitationID:  s.nextInvitationID,
		sessions:          maps.Clone(s.sessions),
		participants:      maps.Clone(s.participants),
		invitations:       maps.Clone(s.invitations),
	}
}

// Store keeps sessions, participants, and invitations in memory.
// Transactions are serializable: one runs at a time against a private copy that
// replaces the committed state only when the transaction succeeds.
type Store struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		st: &state{
			sessions:     make(map[int64]lobby.Session),
			participants: make(map[int64]lobby.Participant),
			invitations:  make(map[int64]lobby.Invitation),
		},
		clock: time.Now,
	}
}

// WithTx implements lobby.Store.
func (s *Store) WithTx(ctx context.Context, fn func(tx lobby.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &tx{st: s.st.clone(), now: s.clock}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// CreateInvitation implements lobby.InvitationStore.
func (s *Store) CreateInvitation(_ context.Context, inv *lobby.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.sessions[inv.SessionID]; !ok {
		return lobby.ErrNoRows
	}
	s.st.nextInvitationID++
	inv.ID = s.st.nextInvitationID
	inv.CreatedAt = s.clock()
	s.st.invitations[inv.ID] = *inv
	return nil
}

// SetInvitationStatus implements lobby.InvitationStore.
func (s *Store) SetInvitationStatus(_ context.Context, id int64, status lobby.InvitationStatus) (*lobby.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.st.invitations[id]
	if !ok {
		return nil, lobby.ErrNoRows
	}
	inv.Status = status
	s.st.invitations[id] = inv
	return &inv, nil
}

// InvitationsFor implements lobby.InvitationStore.
func (s *Store) InvitationsFor(_ context.Context, to string) ([]lobby.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]lobby.Invitation, 0)
	for _, inv := range s.st.invitations {
		if inv.To == to {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b lobby.Invitation) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) JoinCodeExists(_ context.Context, code string) (bool, error) {
	_, err := t.sessionByCode(code)
	return err == nil, nil
}

func (t *tx) sessionByCode(code string) (*lobby.Session, error) {
	for _, s := range t.st.sessions {
		if s.JoinCode == code {
			return &s, nil
		}
	}
	return nil, lobby.ErrNoRows
}

func (t *tx) InsertSession(_ context.Context, s *lobby.Session) error {
	if _, err := t.sessionByCode(s.JoinCode); err == nil {
		return lobby.ErrJoinCodeConflict
	}
	t.st.nextSessionID++
	s.ID = t.st.nextSessionID
	s.CreatedAt = t.now()
	row := *s
	row.Participants = nil
	t.st.sessions[s.ID] = row
	return nil
}

func (t *tx) SessionByID(_ context.Context, id int64) (*lobby.Session, error) {
	s, ok := t.st.sessions[id]
	if !ok {
		return nil, lobby.ErrNoRows
	}
	return &s, nil
}

func (t *tx) SessionByJoinCode(_ context.Context, code string) (*lobby.Session, error) {
	return t.sessionByCode(code)
}

func (t *tx) Participants(_ context.Context, sessionID int64) ([]lobby.Participant, error) {
	out := make([]lobby.Participant, 0)
	for _, p := range t.st.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	// IDs are assigned in insertion order, so they order by join time.
	slices.SortFunc(out, func(a, b lobby.Participant) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (t *tx) TakenContinents(ctx context.Context, sessionID int64) ([]lobby.Continent, error) {
	ps, err := t.Participants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]lobby.Continent, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Continent)
	}
	return out, nil
}

func (t *tx) ParticipantByName(_ context.Context, sessionID int64, name string) (*lobby.Participant, error) {
	for _, p := range t.st.participants {
		if p.SessionID == sessionID && p.Name == name {
			return &p, nil
		}
	}
	return nil, lobby.ErrNoRows
}

func (t *tx) InsertParticipant(_ context.Context, p *lobby.Participant) error {
	if _, ok := t.st.sessions[p.SessionID]; !ok {
		return lobby.ErrNoRows
	}
	for _, other := range t.st.participants {
		if other.SessionID != p.SessionID {
			continue
		}
		if other.Name == p.Name {
			return lobby.ErrNameConflict
		}
		if other.Continent == p.Continent {
			return lobby.ErrContinentConflict
		}
	}
	t.st.nextParticipantID++
	p.ID = t.st.nextParticipantID
	p.JoinedAt = t.now()
	t.st.participants[p.ID] = *p
	return nil
}

func (t *tx) DeleteParticipant(_ context.Context, id int64) error {
	if _, ok := t.st.participants[id]; !ok {
		return lobby.ErrNoRows
	}
	delete(t.st.participants, id)
	return nil
}

func (t *tx) AdvanceStage(_ context.Context, sessionID int64) (int, error) {
	s, ok := t.st.sessions[sessionID]
	if !ok {
		return 0, lobby.ErrNoRows
	}
	s.Stage++
	t.st.sessions[sessionID] = s
	return s.Stage, nil
}

func (t *tx) DeleteSession(_ context.Context, id int64) error {
	if _, ok := t.st.sessions[id]; !ok {
		return lobby.ErrNoRows
	}
	delete(t.st.sessions, id)
	for pid, p := range t.st.participants {
		if p.SessionID == id {
			delete(t.st.participants, pid)
		}
	}
	for iid, inv := range t.st.invitations {
		if inv.SessionID == id {
			delete(t.st.invitations, iid)
		}
	}
	return nil
}
