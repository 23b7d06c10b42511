package lobby

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// fixedSource always returns the same index, clamped to n.
type fixedSource int

func (f fixedSource) Intn(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

func TestAssign_EmptyTaken(t *testing.T) {
	got, err := Assign(nil, Continents, fixedSource(0))
	require.NoError(t, err)
	assert.Equal(t, Europe, got)
}

func TestAssign_SkipsTaken(t *testing.T) {
	got, err := Assign([]Continent{Europe, Asia, Africa}, Continents, fixedSource(0))
	require.NoError(t, err)
	assert.Equal(t, Americas, got)
}

func TestAssign_Exhausted(t *testing.T) {
	_, err := Assign(Continents, Continents, fixedSource(0))
	require.Error(t, err)
	assert.True(t, IsKind(err, ResourceExhausted))
	assert.Equal(t, "No continents available for this game", err.Error())
}

func TestAssign_IgnoresTokensOutsidePool(t *testing.T) {
	got, err := Assign([]Continent{"Atlantis"}, []Continent{Asia}, fixedSource(0))
	require.NoError(t, err)
	assert.Equal(t, Asia, got)
}

func TestAssign_ReachesEveryFreeContinent(t *testing.T) {
	seen := map[Continent]bool{}
	for i := 0; i < 3; i++ {
		got, err := Assign([]Continent{Asia}, Continents, fixedSource(i))
		require.NoError(t, err)
		seen[got] = true
	}
	assert.Equal(t, map[Continent]bool{Europe: true, Africa: true, Americas: true}, seen)
}

// Property: Assign never returns a taken continent and fails only when all are taken.
func TestPropertyAssignNeverReturnsTaken(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		taken := rapid.SliceOfDistinct(rapid.SampledFrom(Continents), func(c Continent) Continent { return c }).
			Draw(t, "taken")
		seed := rapid.Uint64().Draw(t, "seed")

		got, err := Assign(taken, Continents, NewSeededSource(seed))
		if len(taken) == len(Continents) {
			if !IsKind(err, ResourceExhausted) {
				t.Fatalf("expected ResourceExhausted, got %v", err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, c := range taken {
			if c == got {
				t.Fatalf("assigned taken continent %q", got)
			}
		}
	})
}

func TestSeededSourceIsReproducible(t *testing.T) {
	a, b := NewSeededSource(42), NewSeededSource(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Intn(1000), b.Intn(1000))
	}
}

func TestCryptoSourcePanicsOnNonPositive(t *testing.T) {
	assert.Panics(t, func() { NewCryptoSource().Intn(0) })
}
