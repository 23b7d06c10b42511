package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

// InvitationRepository implements lobby.InvitationStore on PostgreSQL.
type InvitationRepository struct {
	db *pgxpool.Pool
}

// NewInvitationRepository creates an InvitationRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewInvitationRepository(db *pgxpool.Pool) *InvitationRepository {
	return &InvitationRepository{db: db}
}

const invitationColumns = `id, from_player, to_player, session_id, status, created_at`

func scanInvitation(row pgx.Row) (lobby.Invitation, error) {
	var inv lobby.Invitation
	var status string
	err := row.Scan(&inv.ID, &inv.From, &inv.To, &inv.SessionID, &status, &inv.CreatedAt)
	inv.Status = lobby.InvitationStatus(status)
	return inv, err
}

// CreateInvitation implements lobby.InvitationStore.
//
// Postcondition: inv.ID and inv.CreatedAt are set, or lobby.ErrNoRows is returned
// when the session does not exist.
func (r *InvitationRepository) CreateInvitation(ctx context.Context, inv *lobby.Invitation) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO invitations (from_player, to_player, session_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		inv.From, inv.To, inv.SessionID, string(inv.Status),
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if translated := translate(err); translated != err {
			return translated
		}
		return fmt.Errorf("inserting invitation: %w", err)
	}
	return nil
}

// SetInvitationStatus implements lobby.InvitationStore.
func (r *InvitationRepository) SetInvitationStatus(ctx context.Context, id int64, status lobby.InvitationStatus) (*lobby.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRow(ctx,
		`UPDATE invitations SET status = $1 WHERE id = $2 RETURNING `+invitationColumns,
		string(status), id,
	))
	if err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// InvitationsFor implements lobby.InvitationStore.
func (r *InvitationRepository) InvitationsFor(ctx context.Context, to string) ([]lobby.Invitation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE to_player = $1 ORDER BY created_at DESC, id DESC`,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying invitations: %w", err)
	}
	invs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lobby.Invitation, error) {
		return scanInvitation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning invitations: %w", err)
	}
	return invs, nil
}
