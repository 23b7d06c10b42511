package lobby

import (
	"context"
	"fmt"
	"sync"
)

// LockRegistry hands out one mutual-exclusion lock per session id.
// Locks for different sessions are independent. All methods are safe for
// concurrent use.
//
// Entries are reference counted by holders and waiters and removed when the
// count drops to zero, so the table stays bounded by in-flight operations.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*sessionLock
}

type sessionLock struct {
	// sem has capacity 1; a token in the channel means the lock is held.
	sem  chan struct{}
	refs int
}

// NewLockRegistry creates an empty LockRegistry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[int64]*sessionLock)}
}

// Acquire blocks until the lock for sessionID is held or ctx is done.
//
// Postcondition: On success the caller holds the lock exclusively and must call
// release exactly once; extra calls are no-ops. On failure the lock is not held
// and the error wraps ctx.Err().
func (r *LockRegistry) Acquire(ctx context.Context, sessionID int64) (release func(), err error) {
	l := r.ref(sessionID)
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		r.unref(sessionID, l)
		return nil, fmt.Errorf("acquiring lock for session %d: %w", sessionID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.sem
			r.unref(sessionID, l)
		})
	}, nil
}

// Len returns the number of live lock entries.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

func (r *LockRegistry) ref(sessionID int64) *sessionLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[sessionID]
	if !ok {
		l = &sessionLock{sem: make(chan struct{}, 1)}
		r.locks[sessionID] = l
	}
	l.refs++
	return l
}

func (r *LockRegistry) unref(sessionID int64, l *sessionLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 && r.locks[sessionID] == l {
		delete(r.locks, sessionID)
	}
}
