package live

import (
	"context"
	"errors"
	"net/http"

	"nhooyr.io/websocket"
)

// ErrNotAccepted is returned when a WSConn is used before Accept succeeds.
var ErrNotAccepted = errors.New("websocket not accepted")

// WSConn adapts an HTTP upgrade request into a Conn.
type WSConn struct {
	w    http.ResponseWriter
	r    *http.Request
	opts *websocket.AcceptOptions
	ws   *websocket.Conn
}

// NewWSConn prepares an upgrade of r. The handshake happens in Accept.
//
// Precondition: w and r must belong to an in-flight HTTP request.
func NewWSConn(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) *WSConn {
	return &WSConn{w: w, r: r, opts: opts}
}

// Accept upgrades the HTTP request to a websocket.
func (c *WSConn) Accept(_ context.Context) error {
	ws, err := websocket.Accept(c.w, c.r, c.opts)
	if err != nil {
		return err
	}
	c.ws = ws
	return nil
}

// Send writes data as a single text message. Safe for concurrent use.
func (c *WSConn) Send(ctx context.Context, data []byte) error {
	if c.ws == nil {
		return ErrNotAccepted
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// Receive blocks for the next message from the peer.
func (c *WSConn) Receive(ctx context.Context) ([]byte, error) {
	if c.ws == nil {
		return nil, ErrNotAccepted
	}
	_, data, err := c.ws.Read(ctx)
	return data, err
}

// Close tells the peer the server is going away, with reason.
func (c *WSConn) Close(reason string) error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close(websocket.StatusGoingAway, reason)
}
