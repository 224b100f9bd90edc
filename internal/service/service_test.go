package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
	"github.com/sakif/citypolls/internal/repository/sqlite"
)

// testEnv wires every service over one in-memory database, the way
// server.New does for the real thing.
type testEnv struct {
	store    repository.Store
	tokens   *auth.TokenService
	auth     *AuthService
	users    *UserService
	polls    *PollService
	votes    *VoteService
	comments *CommentService
	tags     *TagService
	feed     *FeedService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	passwords := auth.NewPasswordServiceWithCost(bcrypt.MinCost)
	locks := NewPollLocks(time.Second)

	return &testEnv{
		store:    db,
		tokens:   tokens,
		auth:     NewAuthService(db, tokens, passwords, logger),
		users:    NewUserService(db, passwords, logger),
		polls:    NewPollService(db, locks, logger),
		votes:    NewVoteService(db, locks, logger),
		comments: NewCommentService(db, locks, logger),
		tags:     NewTagService(db, 10, logger),
		feed:     NewFeedService(db, logger),
	}
}

func (e *testEnv) register(t *testing.T, username, city string) *model.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
		City:     city,
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) createPoll(t *testing.T, owner *model.User, question string, options []string, tags ...string) *model.Poll {
	t.Helper()
	p, err := e.polls.Create(context.Background(), owner.ID, question, options, tags)
	require.NoError(t, err)
	return p
}

func (e *testEnv) cast(t *testing.T, p *model.Poll, u *model.User, option int) model.VoteOutcome {
	t.Helper()
	_, outcome, err := e.votes.Cast(context.Background(), p.ID, u.ID, option)
	require.NoError(t, err)
	return outcome
}

func (e *testEnv) poll(t *testing.T, id string) *model.Poll {
	t.Helper()
	p, err := e.polls.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

func counts(p *model.Poll) []int {
	out := make([]int, len(p.Options))
	for i, o := range p.Options {
		out[i] = o.VoteCount
	}
	return out
}

// assertLedgerConsistent checks that every option's tally equals the number
// of active votes selecting it, read from one snapshot.
func assertLedgerConsistent(t *testing.T, e *testEnv, pollID string) {
	t.Helper()
	require.NoError(t, e.store.View(context.Background(), func(tx repository.Tx) error {
		p, err := tx.GetPoll(context.Background(), pollID)
		if err != nil {
			return err
		}
		votes, err := tx.ListVotesByPoll(context.Background(), pollID)
		if err != nil {
			return err
		}
		want := make([]int, len(p.Options))
		for _, v := range votes {
			require.LessOrEqual(t, v.SelectedOption, len(p.Options), "vote on a missing option")
			want[v.SelectedOption-1]++
		}
		assert.Equal(t, want, counts(p), "tallies must match active votes")
		assert.Equal(t, len(votes), p.TotalVotes())
		return nil
	}))
}
