package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/citypolls/internal/config"
	"github.com/sakif/citypolls/internal/handler"
	"github.com/sakif/citypolls/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := New(config.Config{
		DBPath:           ":memory:",
		JWTSecret:        "server-test-secret-0123456789",
		TokenTTL:         time.Hour,
		LockTimeout:      time.Second,
		PopularTagsLimit: 10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

type client struct {
	t     *testing.T
	base  string
	token string
}

func (c *client) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeBody[T any](t *testing.T, res *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(res.Body).Decode(&v))
	return v
}

// signUp registers and logs in, returning an authenticated client.
func signUp(t *testing.T, ts *httptest.Server, username, city string) *client {
	t.Helper()
	c := &client{t: t, base: ts.URL}
	res := c.do(http.MethodPost, "/api/auth/register", map[string]string{
		"username": username, "email": username + "@example.com", "password": "password123", "city": city,
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = c.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": username + "@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)
	c.token = decodeBody[handler.LoginResponse](t, res).Token
	return c
}

func TestServer_TeaOrCoffee(t *testing.T) {
	ts := newTestServer(t)
	owner := signUp(t, ts, "owner", "Dhaka")

	res := owner.do(http.MethodPost, "/api/polls/create", map[string]any{
		"poll": map[string]string{"question": "Tea or coffee?", "optionOne": "Tea", "optionTwo": "Coffee"},
		"tags": []string{"drinks"},
	})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	pollID := decodeBody[model.PollWithVote](t, res).Poll.ID

	voters := make([]*client, 5)
	for i, option := range []int{1, 1, 1, 2, 2} {
		voters[i] = signUp(t, ts, "voter"+string(rune('a'+i)), "Dhaka")
		res := voters[i].do(http.MethodPost, "/api/votes/cast", map[string]any{"pollId": pollID, "selectedOption": option})
		require.Equal(t, http.StatusOK, res.StatusCode)
	}

	percentages := func() (float64, float64, int) {
		res := owner.do(http.MethodGet, "/api/polls/"+pollID, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)
		p := decodeBody[model.PollWithVote](t, res).Poll
		return *p.Options[0].Percentage, *p.Options[1].Percentage, *p.TotalVotes
	}

	tea, coffee, total := percentages()
	assert.InDelta(t, 60.0, tea, 1e-9)
	assert.InDelta(t, 40.0, coffee, 1e-9)
	assert.Equal(t, 5, total)

	res = voters[0].do(http.MethodPost, "/api/votes/cast", map[string]any{"pollId": pollID, "selectedOption": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	tea, coffee, total = percentages()
	assert.InDelta(t, 40.0, tea, 1e-9)
	assert.InDelta(t, 60.0, coffee, 1e-9)
	assert.Equal(t, 5, total, "switching keeps the total")
}

func TestServer_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	anon := &client{t: t, base: ts.URL}

	for _, path := range []string{"/api/polls/feed", "/api/profile/me", "/api/tags/popular"} {
		res := anon.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
	}

	anon.token = "not-a-jwt"
	res := anon.do(http.MethodGet, "/api/polls/feed", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestServer_ProfileRoutes(t *testing.T) {
	ts := newTestServer(t)
	rafi := signUp(t, ts, "rafi", "Dhaka")

	res := rafi.do(http.MethodGet, "/api/profile/me", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	me := decodeBody[model.User](t, res)

	res = rafi.do(http.MethodGet, "/api/profile/rafi", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, me.ID, decodeBody[model.PublicProfile](t, res).ID)

	res = rafi.do(http.MethodGet, "/api/profile/"+me.ID+"/polls-voted?sortBy=latestVoted", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = rafi.do(http.MethodPatch, "/api/profile/toggle-mode", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, model.ModeExplore, decodeBody[model.User](t, res).Mode)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	c := &client{t: t, base: ts.URL}

	res := c.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, res)["status"])

	res = c.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "citypolls_http_request_duration_seconds")
}
