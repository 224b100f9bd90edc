package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/service"
)

type VoteHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		votes:  votes,
		logger: logger,
	}
}

type castRequest struct {
	PollID         string `json:"pollId"`
	SelectedOption int    `json:"selectedOption"`
}

// CastResponse is the caller's active vote and what the cast did to it.
type CastResponse struct {
	Vote    *model.Vote `json:"vote"`
	Outcome string      `json:"outcome"` // inserted, switched, unchanged
}

// HandleCast records, switches, or repeats the caller's vote.
//
// HTTP: POST /api/votes/cast
// REQUEST BODY: {"pollId":"...","selectedOption":2}
//
// Casting the same option again is a no-op, so clients may retry freely,
// including after a 503.
func (h *VoteHandler) HandleCast(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req castRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	vote, outcome, err := h.votes.Cast(r.Context(), req.PollID, uid, req.SelectedOption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CastResponse{Vote: vote, Outcome: outcome.String()})
}

// HandleRemove withdraws the caller's vote.
//
// HTTP: DELETE /api/votes/remove/{pollId}
func (h *VoteHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.votes.Remove(r.Context(), r.PathValue("pollId"), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "vote removed"})
}
