package postgres_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/storage/postgres"
	"github.com/cory-johannsen/lobby/internal/testutil"
)

type nopPublisher struct{}

func (nopPublisher) Broadcast(context.Context, int64, any) {}

func setupSessionStore(t *testing.T) *postgres.SessionStore {
	t.Helper()
	return postgres.NewSessionStore(testutil.NewPool(t))
}

func insertHostedSession(t *testing.T, store *postgres.SessionStore, code string) *lobby.Session {
	t.Helper()
	ctx := context.Background()
	sess := &lobby.Session{Name: "Risk Night", HostName: "Alice", JoinCode: code}
	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		if err := tx.InsertSession(ctx, sess); err != nil {
			return err
		}
		return tx.InsertParticipant(ctx, &lobby.Participant{
			SessionID: sess.ID, Name: "Alice", IsHost: true, Continent: lobby.Europe,
		})
	}))
	return sess
}

func TestSessionStore_InsertAndLookup(t *testing.T) {
	store := setupSessionStore(t)
	ctx := context.Background()
	sess := insertHostedSession(t, store, "ABC123")
	assert.Positive(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		exists, err := tx.JoinCodeExists(ctx, "ABC123")
		require.NoError(t, err)
		assert.True(t, exists)

		got, err := tx.SessionByJoinCode(ctx, "ABC123")
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)
		assert.Equal(t, 0, got.Stage)

		_, err = tx.SessionByID(ctx, sess.ID+1000)
		assert.ErrorIs(t, err, lobby.ErrNoRows)

		host, err := tx.ParticipantByName(ctx, sess.ID, "Alice")
		require.NoError(t, err)
		assert.True(t, host.IsHost)
		assert.Equal(t, lobby.Europe, host.Continent)
		return nil
	}))
}

func TestSessionStore_ConflictsKeepTransactionUsable(t *testing.T) {
	store := setupSessionStore(t)
	ctx := context.Background()
	sess := insertHostedSession(t, store, "ABC123")

	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		err := tx.InsertSession(ctx, &lobby.Session{Name: "dup", HostName: "h", JoinCode: "ABC123"})
		assert.ErrorIs(t, err, lobby.ErrJoinCodeConflict)

		err = tx.InsertParticipant(ctx, &lobby.Participant{SessionID: sess.ID, Name: "Alice", Continent: lobby.Asia})
		assert.ErrorIs(t, err, lobby.ErrNameConflict)

		err = tx.InsertParticipant(ctx, &lobby.Participant{SessionID: sess.ID, Name: "Bob", Continent: lobby.Europe})
		assert.ErrorIs(t, err, lobby.ErrContinentConflict)

		return tx.InsertParticipant(ctx, &lobby.Participant{SessionID: sess.ID, Name: "Bob", Continent: lobby.Asia})
	}))

	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		taken, err := tx.TakenContinents(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, []lobby.Continent{lobby.Europe, lobby.Asia}, taken)
		return nil
	}))
}

func TestSessionStore_AdvanceAndDelete(t *testing.T) {
	store := setupSessionStore(t)
	ctx := context.Background()
	sess := insertHostedSession(t, store, "ABC123")

	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		stage, err := tx.AdvanceStage(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stage)
		return tx.DeleteSession(ctx, sess.ID)
	}))

	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		ps, err := tx.Participants(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, ps)
		assert.ErrorIs(t, tx.DeleteSession(ctx, sess.ID), lobby.ErrNoRows)
		return nil
	}))
}

func TestCoordinator_ConcurrentJoinsOnPostgres(t *testing.T) {
	store := setupSessionStore(t)
	coord := lobby.NewCoordinator(store, nopPublisher{}, zaptest.NewLogger(t), lobby.CoordinatorConfig{})
	ctx := context.Background()

	sess, err := coord.Create(ctx, "Risk Night", "Alice")
	require.NoError(t, err)

	const joiners = 8
	var wg sync.WaitGroup
	results := make([]error, joiners)
	for i := range joiners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = coord.Join(ctx, sess.JoinCode, string(rune('B'+i)))
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, lobby.IsKind(err, lobby.ResourceExhausted), "unexpected error: %v", err)
	}
	assert.Equal(t, len(lobby.Continents)-1, succeeded)

	got, err := coord.Get(ctx, sess.ID)
	require.NoError(t, err)
	continents := make(map[lobby.Continent]bool)
	for _, p := range got.Participants {
		assert.False(t, continents[p.Continent], "continent %s assigned twice", p.Continent)
		continents[p.Continent] = true
	}
}
