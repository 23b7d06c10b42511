package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cory-johannsen/lobby/internal/lobby"
)

type createSessionRequest struct {
	Name            string `json:"name" validate:"required,notblank,max=100"`
	HostDisplayName string `json:"host_display_name" validate:"required,notblank,max=64"`
}

type joinSessionRequest struct {
	JoinCode    string `json:"join_code" validate:"required,max=16"`
	DisplayName string `json:"display_name" validate:"required,notblank,max=64"`
}

type leaveSessionRequest struct {
	DisplayName string `json:"display_name" validate:"required,notblank,max=64"`
}

type deleteSessionRequest struct {
	JoinCode             string `json:"join_code" validate:"required,max=16"`
	RequesterDisplayName string `json:"requester_display_name" validate:"required,notblank,max=64"`
}

// joinResponse is a session snapshot plus the live channel address for the joiner.
type joinResponse struct {
	*lobby.Session
	LiveChannelAddress string `json:"live_channel_address"`
}

func pathID(r *http.Request, msg string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(msg)
	}
	return id, nil
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.coord.Create(r.Context(), strings.TrimSpace(req.Name), strings.TrimSpace(req.HostDisplayName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	sess, err := h.coord.Join(r.Context(), req.JoinCode, name)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{
		Session:            sess,
		LiveChannelAddress: h.liveChannelAddress(r, sess.ID, name),
	})
}

// liveChannelAddress builds the websocket URL a participant connects to.
func (h *Handler) liveChannelAddress(r *http.Request, sessionID int64, name string) string {
	base := strings.TrimSuffix(h.cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		base = scheme + "://" + r.Host
	}
	return fmt.Sprintf("%s/ws/%d?name=%s", base, sessionID, url.QueryEscape(name))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.coord.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) advanceSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.coord.Advance(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) leaveSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid game ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req leaveSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.coord.Leave(r.Context(), id, strings.TrimSpace(req.DisplayName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	var req deleteSessionRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	sess, err := h.coord.Delete(r.Context(), req.JoinCode, strings.TrimSpace(req.RequesterDisplayName))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
