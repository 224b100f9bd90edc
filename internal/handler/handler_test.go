package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/handler"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository/sqlite"
	"github.com/sakif/citypolls/internal/service"
)

type fixture struct {
	tokens   *auth.TokenService
	authSvc  *service.AuthService
	auth     *handler.AuthHandler
	polls    *handler.PollHandler
	votes    *handler.VoteHandler
	comments *handler.CommentHandler
	tags     *handler.TagHandler
	profile  *handler.ProfileHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	locks := service.NewPollLocks(time.Second)

	authSvc := service.NewAuthService(db, tokens, passwords, logger)
	users := service.NewUserService(db, passwords, logger)
	feed := service.NewFeedService(db, logger)

	return &fixture{
		tokens:   tokens,
		authSvc:  authSvc,
		auth:     handler.NewAuthHandler(authSvc, time.Hour, logger),
		polls:    handler.NewPollHandler(service.NewPollService(db, locks, logger), feed, logger),
		votes:    handler.NewVoteHandler(service.NewVoteService(db, locks, logger), logger),
		comments: handler.NewCommentHandler(service.NewCommentService(db, locks, logger), logger),
		tags:     handler.NewTagHandler(service.NewTagService(db, 10, logger), logger),
		profile:  handler.NewProfileHandler(users, feed, logger),
	}
}

func (f *fixture) user(t *testing.T, username, city string) *model.User {
	t.Helper()
	u, err := f.authSvc.Register(context.Background(), service.RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		City:     city,
	})
	require.NoError(t, err)
	return u
}

// request builds a request as an authenticated user; uid "" is anonymous.
// Path values are set directly since the handlers are called without a router.
func request(method, target, uid, body string, pathValues ...string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req = req.WithContext(auth.WithUserID(req.Context(), uid))
	}
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	return req
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

// createPoll goes through the handler and returns the poll id.
func (f *fixture) createPoll(t *testing.T, uid, body string) string {
	t.Helper()
	rr := serve(f.polls.HandleCreate, request(http.MethodPost, "/api/polls/create", uid, body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[model.PollWithVote](t, rr).Poll.ID
}
