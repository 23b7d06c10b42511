package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

// DuplexConn is a Conn that can also read inbound messages.
type DuplexConn interface {
	Conn
	// Receive blocks for the next inbound message.
	Receive(ctx context.Context) ([]byte, error)
}

type inbound struct {
	Type string `json:"type"`
}

// Serve registers conn under sessionID and processes its inbound messages until
// the peer goes away or ctx is done. chat_message payloads are forwarded verbatim
// to the session; other types are ignored.
//
// Postcondition: conn is disconnected when Serve returns. Disconnecting does not
// affect any in-flight lobby operation.
func (r *Registry) Serve(ctx context.Context, conn DuplexConn, sessionID int64, displayName string) error {
	if err := r.Connect(ctx, conn, sessionID, displayName); err != nil {
		return err
	}
	defer r.Disconnect(conn)

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving message: %w", err)
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("ignoring malformed message",
				zap.Int64("session_id", sessionID),
				zap.Error(err),
			)
			continue
		}

		switch msg.Type {
		case lobby.EventChatMessage:
			r.Broadcast(ctx, sessionID, data)
		default:
			r.logger.Debug("ignoring unknown message type",
				zap.Int64("session_id", sessionID),
				zap.String("type", msg.Type),
			)
		}
	}
}
