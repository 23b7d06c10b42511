package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
)

// Invitation asks a player, by display name, to join a session.
type Invitation struct {
	ID        int64            `json:"id"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	SessionID int64            `json:"session_id"`
	Status    InvitationStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// InvitationStore persists invitations.
type InvitationStore interface {
	// CreateInvitation stores inv and sets its ID and CreatedAt, or returns ErrNoRows
	// if the referenced session does not exist.
	CreateInvitation(ctx context.Context, inv *Invitation) error
	// SetInvitationStatus updates the status and returns the invitation, or ErrNoRows.
	SetInvitationStatus(ctx context.Context, id int64, status InvitationStatus) (*Invitation, error)
	// InvitationsFor lists invitations addressed to the given name, newest first.
	InvitationsFor(ctx context.Context, to string) ([]Invitation, error)
}

// InvitationService sends and answers session invitations.
type InvitationService struct {
	store  InvitationStore
	logger *zap.Logger
}

// NewInvitationService creates an InvitationService.
//
// Precondition: store and logger must be non-nil.
func NewInvitationService(store InvitationStore, logger *zap.Logger) *InvitationService {
	return &InvitationService{store: store, logger: logger}
}

// Send records a pending invitation.
//
// Postcondition: Returns the stored invitation, or NotFound if the session does not exist.
func (s *InvitationService) Send(ctx context.Context, from, to string, sessionID int64) (*Invitation, error) {
	inv := &Invitation{From: from, To: to, SessionID: sessionID, Status: InvitationPending}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		if errors.Is(err, ErrNoRows) {
			return nil, errNotFound("Game not found")
		}
		return nil, fmt.Errorf("creating invitation: %w", err)
	}
	s.logger.Info("invitation sent",
		zap.Int64("invitation_id", inv.ID),
		zap.Int64("session_id", sessionID),
		zap.String("from", from),
		zap.String("to", to),
	)
	return inv, nil
}

// Accept marks the invitation accepted.
func (s *InvitationService) Accept(ctx context.Context, id int64) (*Invitation, error) {
	return s.respond(ctx, id, InvitationAccepted)
}

// Reject marks the invitation rejected.
func (s *InvitationService) Reject(ctx context.Context, id int64) (*Invitation, error) {
	return s.respond(ctx, id, InvitationRejected)
}

func (s *InvitationService) respond(ctx context.Context, id int64, status InvitationStatus) (*Invitation, error) {
	inv, err := s.store.SetInvitationStatus(ctx, id, status)
	if errors.Is(err, ErrNoRows) {
		return nil, errNotFound("Invitation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("updating invitation: %w", err)
	}
	s.logger.Info("invitation answered", zap.Int64("invitation_id", id), zap.String("status", string(status)))
	return inv, nil
}

// ForPlayer lists invitations addressed to name.
func (s *InvitationService) ForPlayer(ctx context.Context, name string) ([]Invitation, error) {
	invs, err := s.store.InvitationsFor(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	return invs, nil
}
