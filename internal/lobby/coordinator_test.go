package lobby_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/lobby/internal/lobby"
	"github.com/cory-johannsen/lobby/internal/storage/memory"
)

type published struct {
	sessionID int64
	event     lobby.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	onSend func(sessionID int64)
}

func (p *recordingPublisher) Broadcast(_ context.Context, sessionID int64, event any) {
	if p.onSend != nil {
		p.onSend(sessionID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{sessionID: sessionID, event: event.(lobby.Event)})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func newCoordinator(t *testing.T, store lobby.Store, pub lobby.Publisher) *lobby.Coordinator {
	return newCoordinatorWithLogger(zaptest.NewLogger(t), store, pub)
}

func newCoordinatorWithLogger(logger *zap.Logger, store lobby.Store, pub lobby.Publisher) *lobby.Coordinator {
	return lobby.NewCoordinator(store, pub, logger, lobby.CoordinatorConfig{
		Source:      lobby.NewSeededSource(1),
		LockTimeout: time.Second,
	})
}

func continentsOf(s *lobby.Session) []lobby.Continent {
	out := make([]lobby.Continent, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, p.Continent)
	}
	return out
}

func TestCoordinator_RiskNightScenario(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)

	s, err := c.Create(ctx, "Risk Night", "Alice")
	require.NoError(t, err)
	assert.Len(t, s.JoinCode, 6)
	assert.True(t, lobby.ValidJoinCode(s.JoinCode, 6))
	assert.Equal(t, 0, s.Stage)
	require.Len(t, s.Participants, 1)
	alice := s.Participants[0]
	assert.Equal(t, "Alice", alice.Name)
	assert.True(t, alice.IsHost)
	assert.Contains(t, lobby.Continents, alice.Continent)

	s, err = c.Join(ctx, s.JoinCode, "Bob")
	require.NoError(t, err)
	require.Len(t, s.Participants, 2)
	assert.Equal(t, "Bob", s.Participants[1].Name)
	assert.NotEqual(t, alice.Continent, s.Participants[1].Continent)
	assert.False(t, s.Participants[1].IsHost)

	_, err = c.Join(ctx, s.JoinCode, "Alice")
	require.Error(t, err)
	assert.True(t, lobby.IsKind(err, lobby.NameTaken))

	_, err = c.Join(ctx, s.JoinCode, "Carol")
	require.NoError(t, err)
	s, err = c.Join(ctx, s.JoinCode, "Dave")
	require.NoError(t, err)
	assert.ElementsMatch(t, lobby.Continents, continentsOf(s))

	_, err = c.Join(ctx, s.JoinCode, "Eve")
	require.Error(t, err)
	assert.True(t, lobby.IsKind(err, lobby.ResourceExhausted))
	assert.Equal(t, "No continents available for this game", err.Error())

	s, err = c.Advance(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stage)

	events := pub.all()
	require.Len(t, events, 4)
	for _, e := range events[:3] {
		assert.Equal(t, lobby.EventParticipantJoined, e.event.Type)
	}
	last := events[3]
	assert.Equal(t, s.ID, last.sessionID)
	assert.Equal(t, lobby.EventStageAdvanced, last.event.Type)
	data, ok := last.event.Data.(lobby.StageAdvanced)
	require.True(t, ok)
	assert.Equal(t, 1, data.Stage)
	assert.Len(t, data.Participants, 4)
}

func TestCoordinator_JoinNormalizesCode(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, memory.NewStore(), &recordingPublisher{})
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)

	_, err = c.Join(ctx, "  "+toLower(s.JoinCode)+" ", "Bob")
	assert.NoError(t, err)
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func TestCoordinator_JoinInvalidCode(t *testing.T) {
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)
	_, err := c.Join(context.Background(), "ZZZZZZ", "Bob")
	require.Error(t, err)
	assert.True(t, lobby.IsKind(err, lobby.InvalidJoinCode))
	assert.Empty(t, pub.all(), "failed joins publish nothing")
}

func TestCoordinator_RejectsBlankNames(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)

	_, err := c.Create(ctx, "   ", "Alice")
	assert.True(t, lobby.IsKind(err, lobby.InvalidName), "blank session name: %v", err)
	_, err = c.Create(ctx, "Risk Night", "\t ")
	assert.True(t, lobby.IsKind(err, lobby.InvalidName), "blank host name: %v", err)

	s, err := c.Create(ctx, "  Risk Night ", " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "Risk Night", s.Name)
	assert.Equal(t, "Alice", s.HostName)
	assert.Equal(t, "Alice", s.Participants[0].Name)

	_, err = c.Join(ctx, s.JoinCode, "   ")
	assert.True(t, lobby.IsKind(err, lobby.InvalidName), "blank display name: %v", err)

	got, err := c.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 1)
	assert.Empty(t, pub.all())
}

func TestCoordinator_MalformedJoinCodeRejected(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, memory.NewStore(), &recordingPublisher{})
	s, err := c.Create(ctx, "Risk Night", "Alice")
	require.NoError(t, err)

	for _, code := range []string{"", "ABC", "ABC-12", s.JoinCode + "X"} {
		_, err := c.Join(ctx, code, "Bob")
		assert.True(t, lobby.IsKind(err, lobby.InvalidJoinCode), "join %q: %v", code, err)
		_, err = c.Delete(ctx, code, "Alice")
		assert.True(t, lobby.IsKind(err, lobby.InvalidJoinCode), "delete %q: %v", code, err)
	}
}

func TestCoordinator_ConcurrentJoinsExhaustPool(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, memory.NewStore(), &recordingPublisher{})
	s, err := c.Create(ctx, "g", "Host")
	require.NoError(t, err)

	// The host already holds one continent, leaving three for the joiners.
	const n = 12
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Join(ctx, s.JoinCode, fmt.Sprintf("player-%d", i))
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, lobby.IsKind(err, lobby.ResourceExhausted), "unexpected error: %v", err)
	}
	assert.Equal(t, 3, successes)

	got, err := c.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, lobby.Continents, continentsOf(got))
	assert.Equal(t, 0, c.Locks().Len())
}

// With all four continents free, N concurrent joiners yield exactly four winners.
func TestCoordinator_ConcurrentJoinsFourOfN(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	c := newCoordinator(t, store, &recordingPublisher{})
	s, err := c.Create(ctx, "g", "Host")
	require.NoError(t, err)
	// Free the host's continent directly so the pool starts with 0 taken.
	require.NoError(t, store.WithTx(ctx, func(tx lobby.Tx) error {
		p, err := tx.ParticipantByName(ctx, s.ID, "Host")
		if err != nil {
			return err
		}
		return tx.DeleteParticipant(ctx, p.ID)
	}))

	const n = 9
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Join(ctx, s.JoinCode, fmt.Sprintf("p%d", i))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case lobby.IsKind(err, lobby.ResourceExhausted):
			exhausted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 4, ok)
	assert.Equal(t, n-4, exhausted)
}

func TestCoordinator_BroadcastAfterLockRelease(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)

	var acquiredDuringPublish bool
	pub.onSend = func(sessionID int64) {
		lockCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		release, err := c.Locks().Acquire(lockCtx, sessionID)
		if err == nil {
			acquiredDuringPublish = true
			release()
		}
	}

	_, err = c.Join(ctx, s.JoinCode, "Bob")
	require.NoError(t, err)
	assert.True(t, acquiredDuringPublish, "session lock must be free while publishing")
}

func TestCoordinator_LockTimeout(t *testing.T) {
	ctx := context.Background()
	c := lobby.NewCoordinator(memory.NewStore(), &recordingPublisher{}, zaptest.NewLogger(t), lobby.CoordinatorConfig{
		LockTimeout: 20 * time.Millisecond,
	})
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)

	release, err := c.Locks().Acquire(ctx, s.ID)
	require.NoError(t, err)
	defer release()

	_, err = c.Advance(ctx, s.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoordinator_AdvanceMonotonic(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, memory.NewStore(), &recordingPublisher{})
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)

	for want := 1; want <= 5; want++ {
		got, err := c.Advance(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.Stage)
	}

	_, err = c.Advance(ctx, s.ID+100)
	assert.True(t, lobby.IsKind(err, lobby.NotFound))
}

func TestCoordinator_Delete(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)
	_, err = c.Join(ctx, s.JoinCode, "Bob")
	require.NoError(t, err)

	_, err = c.Delete(ctx, s.JoinCode, "Bob")
	require.Error(t, err)
	assert.True(t, lobby.IsKind(err, lobby.NotAuthorized))
	assert.Equal(t, "Only the host can delete the game", err.Error())

	_, err = c.Delete(ctx, "NOPE00", "Alice")
	assert.True(t, lobby.IsKind(err, lobby.InvalidJoinCode))

	eventsBefore := len(pub.all())
	deleted, err := c.Delete(ctx, toLower(s.JoinCode), "Alice")
	require.NoError(t, err)
	assert.Equal(t, s.ID, deleted.ID)
	assert.Len(t, deleted.Participants, 2)
	assert.Len(t, pub.all(), eventsBefore, "delete publishes nothing")

	_, err = c.Get(ctx, s.ID)
	assert.True(t, lobby.IsKind(err, lobby.NotFound))
	_, err = c.Join(ctx, s.JoinCode, "Carol")
	assert.True(t, lobby.IsKind(err, lobby.InvalidJoinCode))
}

func TestCoordinator_LeaveFreesContinent(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	c := newCoordinator(t, memory.NewStore(), pub)
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)
	for _, name := range []string{"Bob", "Carol", "Dave"} {
		_, err = c.Join(ctx, s.JoinCode, name)
		require.NoError(t, err)
	}

	s, err = c.Leave(ctx, s.ID, "Carol")
	require.NoError(t, err)
	assert.Len(t, s.Participants, 3)

	last := pub.all()[len(pub.all())-1]
	assert.Equal(t, lobby.EventParticipantLeft, last.event.Type)
	leaver := last.event.Data.(lobby.Participant)
	assert.Equal(t, "Carol", leaver.Name)

	s, err = c.Join(ctx, s.JoinCode, "Eve")
	require.NoError(t, err)
	assert.Equal(t, leaver.Continent, s.Participants[len(s.Participants)-1].Continent)

	_, err = c.Leave(ctx, s.ID, "Zed")
	assert.True(t, lobby.IsKind(err, lobby.NotFound))
	_, err = c.Leave(ctx, s.ID, "Alice")
	assert.True(t, lobby.IsKind(err, lobby.NotAuthorized))
}

// conflictStore reports one continent conflict on the first joiner insert,
// as if a writer outside the coordinator had raced it.
type conflictStore struct {
	lobby.Store
	mu       sync.Mutex
	injected bool
}

func (s *conflictStore) WithTx(ctx context.Context, fn func(lobby.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx lobby.Tx) error {
		return fn(&conflictTx{Tx: tx, store: s})
	})
}

type conflictTx struct {
	lobby.Tx
	store *conflictStore
}

func (t *conflictTx) InsertParticipant(ctx context.Context, p *lobby.Participant) error {
	t.store.mu.Lock()
	inject := !p.IsHost && !t.store.injected
	t.store.injected = t.store.injected || inject
	t.store.mu.Unlock()
	if inject {
		return lobby.ErrContinentConflict
	}
	return t.Tx.InsertParticipant(ctx, p)
}

func TestCoordinator_JoinRetriesOnContinentConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictStore{Store: memory.NewStore()}
	c := newCoordinator(t, store, &recordingPublisher{})
	s, err := c.Create(ctx, "g", "Alice")
	require.NoError(t, err)

	s, err = c.Join(ctx, s.JoinCode, "Bob")
	require.NoError(t, err)
	assert.True(t, store.injected)
	assert.Len(t, s.Participants, 2)
}

// Property: any interleaving of joins, leaves, and advances keeps names and
// continents unique, exactly one host, and stage equal to the advance count.
func TestPropertyRosterInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		c := newCoordinatorWithLogger(zap.NewNop(), memory.NewStore(), &recordingPublisher{})
		s, err := c.Create(ctx, "g", "Host")
		if err != nil {
			rt.Fatalf("create: %v", err)
		}

		names := []string{"Host", "Ann", "Ben", "Cat", "Dan", "Eve"}
		advances := 0
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			name := rapid.SampledFrom(names).Draw(rt, "name")
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				_, _ = c.Join(ctx, s.JoinCode, name)
			case 1:
				_, _ = c.Leave(ctx, s.ID, name)
			case 2:
				if _, err := c.Advance(ctx, s.ID); err != nil {
					rt.Fatalf("advance: %v", err)
				}
				advances++
			}
		}

		got, err := c.Get(ctx, s.ID)
		if err != nil {
			rt.Fatalf("get: %v", err)
		}
		seenNames := map[string]bool{}
		seenContinents := map[lobby.Continent]bool{}
		hosts := 0
		for _, p := range got.Participants {
			if seenNames[p.Name] {
				rt.Fatalf("duplicate name %q", p.Name)
			}
			if seenContinents[p.Continent] {
				rt.Fatalf("duplicate continent %q", p.Continent)
			}
			seenNames[p.Name] = true
			seenContinents[p.Continent] = true
			if p.IsHost {
				hosts++
			}
		}
		if hosts != 1 {
			rt.Fatalf("expected exactly one host, got %d", hosts)
		}
		if got.Stage != advances {
			rt.Fatalf("stage = %d, want %d", got.Stage, advances)
		}
	})
}

func TestCoordinator_JoinCodesDistinct(t *testing.T) {
	ctx := context.Background()
	// A two-character code space forces collisions that must be retried, not failed.
	c := lobby.NewCoordinator(memory.NewStore(), &recordingPublisher{}, zaptest.NewLogger(t), lobby.CoordinatorConfig{
		JoinCodeLength: 2,
		Source:         lobby.NewSeededSource(3),
	})
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		s, err := c.Create(ctx, "g", "Host")
		require.NoError(t, err)
		require.False(t, seen[s.JoinCode], "duplicate join code %s", s.JoinCode)
		seen[s.JoinCode] = true
	}
}
