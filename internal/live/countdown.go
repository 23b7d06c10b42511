package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

// CountdownTick is the payload of a countdown event.
type CountdownTick struct {
	Remaining int `json:"remaining"`
}

type countdown struct {
	done chan struct{}
	once sync.Once
}

func (c *countdown) stop() {
	c.once.Do(func() { close(c.done) })
}

// StartCountdown broadcasts a countdown event for sessionID once per tick, from
// seconds down to 0, then stops. A countdown already running for the session is
// replaced.
//
// Precondition: seconds >= 0.
// Postcondition: seconds+1 events are broadcast unless the countdown is stopped first.
func (r *Registry) StartCountdown(sessionID int64, seconds int) {
	cd := &countdown{done: make(chan struct{})}

	r.cmu.Lock()
	if prev, ok := r.countdowns[sessionID]; ok {
		prev.stop()
	}
	r.countdowns[sessionID] = cd
	r.cmu.Unlock()

	r.logger.Info("countdown started", zap.Int64("session_id", sessionID), zap.Int("seconds", seconds))

	go func() {
		defer r.finishCountdown(sessionID, cd)
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()
		for remaining := seconds; ; remaining-- {
			select {
			case <-cd.done:
				return
			default:
			}
			r.Broadcast(context.Background(), sessionID, lobby.Event{
				Type: lobby.EventCountdown,
				Data: CountdownTick{Remaining: remaining},
			})
			if remaining == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-cd.done:
				return
			}
		}
	}()
}

// StopCountdown cancels the session's running countdown, if any.
//
// Postcondition: Returns true if a countdown was running.
func (r *Registry) StopCountdown(sessionID int64) bool {
	r.cmu.Lock()
	defer r.cmu.Unlock()
	cd, ok := r.countdowns[sessionID]
	if !ok {
		return false
	}
	cd.stop()
	delete(r.countdowns, sessionID)
	return true
}

func (r *Registry) finishCountdown(sessionID int64, cd *countdown) {
	r.cmu.Lock()
	defer r.cmu.Unlock()
	if r.countdowns[sessionID] == cd {
		delete(r.countdowns, sessionID)
	}
}
