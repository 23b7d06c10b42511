package api

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/cory-johannsen/lobby/internal/live"
)

type countdownRequest struct {
	Seconds int `json:"seconds" validate:"gte=0"`
}

type countdownResponse struct {
	SessionID int64 `json:"session_id"`
	Seconds   int   `json:"seconds"`
}

type connectionsResponse struct {
	Names []string `json:"names"`
}

// liveChannel upgrades the request to a websocket registered under the session
// and serves it until the peer disconnects.
func (h *Handler) liveChannel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := h.coord.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	// The server's read and write timeouts would otherwise close long-lived sockets.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn := live.NewWSConn(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.AllowedOrigins})
	err = h.registry.Serve(r.Context(), conn, id, r.URL.Query().Get("name"))
	switch {
	case err == nil:
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		h.logger.Debug("live channel closed", zap.Int64("session_id", id))
	default:
		h.logger.Debug("live channel ended", zap.Int64("session_id", id), zap.Error(err))
	}
}

func (h *Handler) startCountdown(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req countdownRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if h.cfg.MaxCountdown > 0 && req.Seconds > int(h.cfg.MaxCountdown/time.Second) {
		h.writeError(w, r, badRequest(fmt.Sprintf("Countdown may not exceed %s", h.cfg.MaxCountdown)))
		return
	}
	if _, err := h.coord.Get(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.registry.StartCountdown(id, req.Seconds)
	writeJSON(w, http.StatusAccepted, countdownResponse{SessionID: id, Seconds: req.Seconds})
}

func (h *Handler) connections(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, connectionsResponse{Names: h.registry.DisplayNames(id)})
}
