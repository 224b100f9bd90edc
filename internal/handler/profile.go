package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/service"
)

// ProfileHandler serves the caller's own account settings and other users'
// public profiles.
type ProfileHandler struct {
	users  *service.UserService
	feed   *service.FeedService
	logger *slog.Logger
}

func NewProfileHandler(users *service.UserService, feed *service.FeedService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		users:  users,
		feed:   feed,
		logger: logger,
	}
}

type cityRequest struct {
	City string `json:"city"`
}

type usernameRequest struct {
	NewUsername string `json:"newUsername"`
}

type passwordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// HTTP: GET /api/profile/me
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	user, err := h.users.Me(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateCity moves the caller. Their existing polls keep their city.
//
// HTTP: PUT /api/profile/update-city
// REQUEST BODY: {"city":"Sylhet"}
func (h *ProfileHandler) HandleUpdateCity(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req cityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respondWithUser(w, func() (*model.User, error) {
		return h.users.UpdateCity(r.Context(), uid, req.City)
	})
}

// HTTP: PATCH /api/profile/update-username
// REQUEST BODY: {"newUsername":"rafi2"}
func (h *ProfileHandler) HandleUpdateUsername(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req usernameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.respondWithUser(w, func() (*model.User, error) {
		return h.users.UpdateUsername(r.Context(), uid, req.NewUsername)
	})
}

// HTTP: PATCH /api/profile/update-password
// REQUEST BODY: {"oldPassword":"...","newPassword":"..."}
func (h *ProfileHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.UpdatePassword(r.Context(), uid, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}

// HandleToggleMode flips between LOCAL and EXPLORE.
//
// HTTP: PATCH /api/profile/toggle-mode
func (h *ProfileHandler) HandleToggleMode(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	h.respondWithUser(w, func() (*model.User, error) {
		return h.users.ToggleMode(r.Context(), uid)
	})
}

// HandleDeleteAccount removes the caller and everything they own.
//
// HTTP: DELETE /api/profile/delete
func (h *ProfileHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.users.DeleteAccount(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "account deleted"})
}

// HandlePublicProfile shows another user's activity summary.
//
// HTTP: GET /api/profile/{username}
func (h *ProfileHandler) HandlePublicProfile(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	profile, err := h.users.PublicProfile(r.Context(), r.PathValue("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// HTTP: GET /api/profile/{userId}/polls-created?sortBy=latest
func (h *ProfileHandler) HandlePollsCreated(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	items, err := h.feed.ProfileCreated(r.Context(), uid, r.PathValue("userId"), r.URL.Query().Get("sortBy"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HTTP: GET /api/profile/{userId}/polls-voted?sortBy=latestVoted
func (h *ProfileHandler) HandlePollsVoted(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	items, err := h.feed.ProfileVoted(r.Context(), uid, r.PathValue("userId"), r.URL.Query().Get("sortBy"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ProfileHandler) respondWithUser(w http.ResponseWriter, fn func() (*model.User, error)) {
	user, err := fn()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
