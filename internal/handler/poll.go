package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/ranking"
	"github.com/sakif/citypolls/internal/service"
)

// PollHandler serves poll CRUD and every poll listing. Writes go to
// PollService; reads go through FeedService so results are always redacted
// for the caller.
type PollHandler struct {
	polls  *service.PollService
	feed   *service.FeedService
	logger *slog.Logger
}

func NewPollHandler(polls *service.PollService, feed *service.FeedService, logger *slog.Logger) *PollHandler {
	return &PollHandler{
		polls:  polls,
		feed:   feed,
		logger: logger,
	}
}

// pollContent accepts the options either as a list or in the fixed
// optionOne..optionFour slots older clients send.
type pollContent struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	OptionOne   string   `json:"optionOne"`
	OptionTwo   string   `json:"optionTwo"`
	OptionThree string   `json:"optionThree"`
	OptionFour  string   `json:"optionFour"`
}

// options returns the list form. Empty trailing slots are absent options;
// the first two slots always count so a blank one is reported, not dropped.
func (c pollContent) options() []string {
	if len(c.Options) > 0 {
		return c.Options
	}
	slots := []string{c.OptionOne, c.OptionTwo, c.OptionThree, c.OptionFour}
	n := len(slots)
	for n > model.MinOptions && strings.TrimSpace(slots[n-1]) == "" {
		n--
	}
	return slots[:n]
}

// createPollRequest takes the content either nested under "poll" or at the
// top level.
type createPollRequest struct {
	Poll *pollContent `json:"poll"`
	pollContent
	Tags []string `json:"tags"`
}

func (req createPollRequest) content() pollContent {
	if req.Poll != nil {
		return *req.Poll
	}
	return req.pollContent
}

// HandleCreate creates a poll in the caller's city.
//
// HTTP: POST /api/polls/create
// REQUEST BODY:
//
//	{"poll":{"question":"Tea or coffee?","optionOne":"Tea","optionTwo":"Coffee"},"tags":["food"]}
//	{"question":"Tea or coffee?","options":["Tea","Coffee"],"tags":["food"]}
func (h *PollHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req createPollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	c := req.content()
	p, err := h.polls.Create(r.Context(), uid, c.Question, c.options(), req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithPoll(w, r, uid, p.ID, http.StatusCreated)
}

// HandleEdit replaces the question and options of the caller's poll.
//
// HTTP: PUT /api/polls/edit/{id}
// REQUEST BODY: {"question":"...","optionOne":"...","optionTwo":"..."} or {"question":"...","options":[...]}
func (h *PollHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var c pollContent
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.polls.Edit(r.Context(), r.PathValue("id"), uid, c.Question, c.options())
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithPoll(w, r, uid, p.ID, http.StatusOK)
}

// HandleDelete removes the caller's poll with its votes, comments, and tag
// usage.
//
// HTTP: DELETE /api/polls/delete/{id}
func (h *PollHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.polls.Delete(r.Context(), r.PathValue("id"), uid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "poll deleted"})
}

// HandleGet returns one poll as the caller sees it.
//
// HTTP: GET /api/polls/{id}
func (h *PollHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	h.respondWithPoll(w, r, uid, r.PathValue("id"), http.StatusOK)
}

func (h *PollHandler) respondWithPoll(w http.ResponseWriter, r *http.Request, uid, pollID string, status int) {
	item, err := h.feed.Poll(r.Context(), uid, pollID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, item)
}

// HandleFeed lists polls in the caller's city.
//
// HTTP: GET /api/polls/feed?sortBy=latest|oldest|mostVoted
func (h *PollHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(uid string) ([]model.PollWithVote, error) {
		return h.feed.Feed(r.Context(), uid, r.URL.Query().Get("sortBy"))
	})
}

// HandleSearch lists polls in the caller's city matching query.
//
// HTTP: GET /api/polls/search?query=chai&sortBy=latest
func (h *PollHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, func(uid string) ([]model.PollWithVote, error) {
		return h.feed.Search(r.Context(), uid, q.Get("query"), q.Get("sortBy"))
	})
}

// HandleFilter lists polls in the caller's city carrying every tag.
//
// HTTP: GET /api/polls/filter?tags=food,street&query=&sortBy=latest
func (h *PollHandler) HandleFilter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.list(w, r, func(uid string) ([]model.PollWithVote, error) {
		return h.feed.Filter(r.Context(), uid, ranking.SplitTags(q.Get("tags")), q.Get("query"), q.Get("sortBy"))
	})
}

// HTTP: GET /api/polls/my-polls?sortBy=latest
func (h *PollHandler) HandleMyPolls(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(uid string) ([]model.PollWithVote, error) {
		return h.feed.MyPolls(r.Context(), uid, r.URL.Query().Get("sortBy"))
	})
}

// HandleMyVotes lists polls the caller currently has a vote on.
//
// HTTP: GET /api/polls/my-votes?sortBy=latestVoted
func (h *PollHandler) HandleMyVotes(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, func(uid string) ([]model.PollWithVote, error) {
		return h.feed.MyVotes(r.Context(), uid, r.URL.Query().Get("sortBy"))
	})
}

func (h *PollHandler) list(w http.ResponseWriter, r *http.Request, fetch func(uid string) ([]model.PollWithVote, error)) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	items, err := fetch(uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}
