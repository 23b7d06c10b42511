package api

import (
	"net/http"
	"strings"
)

type sendInvitationRequest struct {
	From      string `json:"from" validate:"required,notblank,max=64"`
	To        string `json:"to" validate:"required,notblank,max=64"`
	SessionID int64  `json:"session_id" validate:"required,gt=0"`
}

type respondInvitationRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

func (h *Handler) sendInvitation(w http.ResponseWriter, r *http.Request) {
	var req sendInvitationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	inv, err := h.invites.Send(r.Context(), strings.TrimSpace(req.From), strings.TrimSpace(req.To), req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

func (h *Handler) respondInvitation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Invalid invitation ID")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req respondInvitationRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	respond := h.invites.Reject
	if *req.Accept {
		respond = h.invites.Accept
	}
	inv, err := respond(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	player := strings.TrimSpace(r.URL.Query().Get("player"))
	if player == "" {
		h.writeError(w, r, badRequest("Missing player"))
		return
	}
	invs, err := h.invites.ForPlayer(r.Context(), player)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}
