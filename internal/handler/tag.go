package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/service"
)

type TagHandler struct {
	tags   *service.TagService
	logger *slog.Logger
}

func NewTagHandler(tags *service.TagService, logger *slog.Logger) *TagHandler {
	return &TagHandler{
		tags:   tags,
		logger: logger,
	}
}

// HandlePopular lists the most used tags in the caller's city.
//
// HTTP: GET /api/tags/popular?limit=10
//
// A missing limit uses the configured default; larger values are capped.
func (h *TagHandler) HandlePopular(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperror.ValidationFailed("limit", "limit must be a positive integer"))
			return
		}
		limit = n
	}

	tags, err := h.tags.PopularForUser(r.Context(), uid, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
