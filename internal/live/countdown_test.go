package live

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

func remainingValues(t *testing.T, msgs []string) []int {
	t.Helper()
	out := make([]int, 0, len(msgs))
	for _, m := range msgs {
		var ev struct {
			Type string        `json:"type"`
			Data CountdownTick `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(m), &ev))
		require.Equal(t, lobby.EventCountdown, ev.Type)
		out = append(out, ev.Data.Remaining)
	}
	return out
}

func TestCountdown_EmitsEverySecondDownToZero(t *testing.T) {
	r := newTestRegistry(t)
	r.tick = time.Millisecond
	c := newFakeConn()
	require.NoError(t, r.Connect(context.Background(), c, 1, "Alice"))

	r.StartCountdown(1, 3)

	require.Eventually(t, func() bool { return len(c.messages()) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{3, 2, 1, 0}, remainingValues(t, c.messages()))
	require.Eventually(t, func() bool { return !r.StopCountdown(1) }, time.Second, 5*time.Millisecond,
		"finished countdown must be removed")
}

func TestCountdown_StopHaltsTicks(t *testing.T) {
	r := newTestRegistry(t)
	r.tick = time.Hour
	c := newFakeConn()
	require.NoError(t, r.Connect(context.Background(), c, 1, "Alice"))

	r.StartCountdown(1, 10)
	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, time.Millisecond)

	assert.True(t, r.StopCountdown(1))
	assert.False(t, r.StopCountdown(1))
	assert.Equal(t, []int{10}, remainingValues(t, c.messages()))
}

func TestCountdown_RestartReplacesRunning(t *testing.T) {
	r := newTestRegistry(t)
	r.tick = time.Hour
	c := newFakeConn()
	require.NoError(t, r.Connect(context.Background(), c, 1, "Alice"))

	r.StartCountdown(1, 10)
	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, time.Millisecond)
	r.StartCountdown(1, 5)
	require.Eventually(t, func() bool { return len(c.messages()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, []int{10, 5}, remainingValues(t, c.messages()))
	assert.True(t, r.StopCountdown(1))
}
