// Package live tracks the connections watching each session and fans session
// events out to them.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// UnknownName is the display name of a connection that supplied none.
const UnknownName = "unknown"

// Conn is a live connection handle.
type Conn interface {
	// Accept performs the transport-level handshake.
	Accept(ctx context.Context) error
	// Send writes one message to the peer.
	Send(ctx context.Context, data []byte) error
	// Close terminates the connection.
	Close(reason string) error
}

type registration struct {
	id   uuid.UUID
	conn Conn
	name string
}

// Registry maps session ids to their live connections in registration order.
// It is a view of who is watching, never the source of truth for the roster.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64][]registration

	cmu        sync.Mutex
	countdowns map[int64]*countdown

	sendTimeout time.Duration
	tick        time.Duration
	logger      *zap.Logger
}

// NewRegistry creates an empty Registry. Each send is bounded by sendTimeout
// when it is positive.
//
// Precondition: logger must be non-nil.
func NewRegistry(sendTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		sessions:    make(map[int64][]registration),
		countdowns:  make(map[int64]*countdown),
		sendTimeout: sendTimeout,
		tick:        time.Second,
		logger:      logger,
	}
}

// Connect accepts conn and registers it under sessionID.
//
// Postcondition: On success conn receives every later broadcast for sessionID until
// Disconnect. On handshake failure nothing is registered.
func (r *Registry) Connect(ctx context.Context, conn Conn, sessionID int64, displayName string) error {
	if err := conn.Accept(ctx); err != nil {
		return fmt.Errorf("accepting connection: %w", err)
	}
	if displayName == "" {
		displayName = UnknownName
	}
	reg := registration{id: uuid.New(), conn: conn, name: displayName}

	r.mu.Lock()
	r.sessions[sessionID] = append(r.sessions[sessionID], reg)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		zap.Int64("session_id", sessionID),
		zap.String("conn_id", reg.id.String()),
		zap.String("name", displayName),
	)
	return nil
}

// Disconnect removes conn's registration. It is a no-op if conn is not registered.
//
// Postcondition: conn receives no broadcast that starts after Disconnect returns.
// Returns true if a registration was removed.
func (r *Registry) Disconnect(conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID, regs := range r.sessions {
		i := slices.IndexFunc(regs, func(reg registration) bool { return reg.conn == conn })
		if i < 0 {
			continue
		}
		reg := regs[i]
		// Copy so that snapshots taken by in-flight broadcasts stay intact.
		remaining := slices.Delete(slices.Clone(regs), i, i+1)
		if len(remaining) == 0 {
			delete(r.sessions, sessionID)
		} else {
			r.sessions[sessionID] = remaining
		}
		r.logger.Info("connection removed",
			zap.Int64("session_id", sessionID),
			zap.String("conn_id", reg.id.String()),
			zap.String("name", reg.name),
		)
		return true
	}
	return false
}

// Broadcast sends event to every connection registered under sessionID, in
// registration order. A lobby.Event or any other value is JSON encoded; []byte,
// json.RawMessage, and string payloads are sent verbatim.
//
// A failed send is logged and skipped; Broadcast never fails.
func (r *Registry) Broadcast(ctx context.Context, sessionID int64, event any) {
	payload, err := encode(event)
	if err != nil {
		r.logger.Error("encoding event", zap.Int64("session_id", sessionID), zap.Error(err))
		return
	}

	r.mu.RLock()
	targets := r.sessions[sessionID]
	r.mu.RUnlock()

	for _, reg := range targets {
		if err := r.send(ctx, reg, payload); err != nil {
			r.logger.Warn("broadcast delivery failed",
				zap.Int64("session_id", sessionID),
				zap.String("conn_id", reg.id.String()),
				zap.String("name", reg.name),
				zap.Error(err),
			)
		}
	}
}

func (r *Registry) send(ctx context.Context, reg registration, payload []byte) error {
	if r.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.sendTimeout)
		defer cancel()
	}
	return reg.conn.Send(ctx, payload)
}

func encode(event any) ([]byte, error) {
	switch v := event.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// DisplayName returns the name conn registered with, or UnknownName.
func (r *Registry) DisplayName(conn Conn) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, regs := range r.sessions {
		for _, reg := range regs {
			if reg.conn == conn {
				return reg.name
			}
		}
	}
	return UnknownName
}

// DisplayNames returns the names of the connections watching sessionID, in
// registration order.
func (r *Registry) DisplayNames(sessionID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.sessions[sessionID], func(reg registration, _ int) string { return reg.name })
}

// ConnectionCount returns the number of registered connections across all sessions.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.SumBy(lo.Values(r.sessions), func(regs []registration) int { return len(regs) })
}

// CloseConnections closes every registered connection with reason and waits for
// the closes to finish. Registrations are removed by their owners as they observe
// the close.
func (r *Registry) CloseConnections(reason string) {
	r.mu.RLock()
	var all []registration
	for _, regs := range r.sessions {
		all = append(all, regs...)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, reg := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reg.conn.Close(reason); err != nil {
				r.logger.Debug("closing connection", zap.String("conn_id", reg.id.String()), zap.Error(err))
			}
		}()
	}
	wg.Wait()
	r.logger.Info("live connections closed", zap.Int("count", len(all)))
}

// Close stops all running countdowns.
func (r *Registry) Close() {
	r.cmu.Lock()
	defer r.cmu.Unlock()
	for id, cd := range r.countdowns {
		cd.stop()
		delete(r.countdowns, id)
	}
}
