package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WSClient is a live channel test client.
type WSClient struct {
	conn *websocket.Conn
	t    *testing.T
}

// NewWSClient dials the websocket at url and returns a test client.
//
// Precondition: url must be a ws:// or wss:// address with a listening server.
// Postcondition: Returns a connected WSClient or fails the test.
func NewWSClient(t *testing.T, url string) *WSClient {
	t.Helper()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", url, err, time.Since(start))
	}

	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "test done")
	})

	t.Logf("websocket client connected to %s [%s]", url, time.Since(start))
	return &WSClient{conn: conn, t: t}
}

// ReadEvent reads the next message and decodes it into a type/data envelope.
//
// Postcondition: Returns the event type and raw data, or fails on timeout.
func (c *WSClient) ReadEvent(timeout time.Duration) (string, json.RawMessage) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var ev struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := wsjson.Read(ctx, c.conn, &ev); err != nil {
		c.t.Fatalf("reading event: %v", err)
	}
	return ev.Type, ev.Data
}

// ReadUntil reads events until one of type eventType arrives and returns its data.
//
// Postcondition: Returns the matching event's data, or fails on timeout.
func (c *WSClient) ReadUntil(eventType string, timeout time.Duration) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %q", eventType)
		}
		typ, data := c.ReadEvent(remaining)
		if typ == eventType {
			return data
		}
	}
}

// Send writes v as a JSON text message.
func (c *WSClient) Send(v any) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, v); err != nil {
		c.t.Fatalf("sending %v: %v", v, err)
	}
}

// Close closes the underlying connection.
func (c *WSClient) Close() {
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}
