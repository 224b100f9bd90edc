package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

func TestCast_InsertSwitchUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "alice", "Dhaka")
	voter := env.register(t, "bob", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B", "C"})

	first, outcome, err := env.votes.Cast(ctx, p.ID, voter.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteInserted, outcome)
	assert.Equal(t, []int{1, 0, 0}, counts(env.poll(t, p.ID)))

	again, outcome, err := env.votes.Cast(ctx, p.ID, voter.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.VoteUnchanged, outcome)
	assert.Equal(t, []int{1, 0, 0}, counts(env.poll(t, p.ID)), "repeat cast is idempotent")
	assert.True(t, first.VotedAt.Equal(again.VotedAt), "votedAt untouched on repeat")

	switched, outcome, err := env.votes.Cast(ctx, p.ID, voter.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, model.VoteSwitched, outcome)
	assert.Equal(t, 3, switched.SelectedOption)
	assert.False(t, switched.VotedAt.Before(first.VotedAt), "votedAt refreshed on switch")
	assert.Equal(t, []int{0, 0, 1}, counts(env.poll(t, p.ID)), "switch keeps the sum")

	assertLedgerConsistent(t, env, p.ID)
}

func TestCast_Rejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "alice", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})

	tests := []struct {
		name   string
		pollID string
		userID string
		option int
		want   error
	}{
		{"option zero", p.ID, owner.ID, 0, apperror.ErrValidation},
		{"option past the end", p.ID, owner.ID, 3, apperror.ErrValidation},
		{"missing poll", "missing", owner.ID, 1, apperror.ErrNotFound},
		{"missing user", p.ID, "ghost", 1, apperror.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.votes.Cast(ctx, tt.pollID, tt.userID, tt.option)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, []int{0, 0}, counts(env.poll(t, p.ID)))
	require.NoError(t, env.store.View(ctx, func(tx repository.Tx) error {
		markers, err := tx.VotedPollIDs(ctx, owner.ID)
		assert.Empty(t, markers, "failed casts leave no marker")
		return err
	}))
}

func TestRemove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "alice", "Dhaka")
	voter := env.register(t, "bob", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})

	assert.ErrorIs(t, env.votes.Remove(ctx, p.ID, voter.ID), apperror.ErrNotFound, "no active vote")
	assert.ErrorIs(t, env.votes.Remove(ctx, "missing", voter.ID), apperror.ErrNotFound)

	env.cast(t, p, voter, 2)
	require.NoError(t, env.votes.Remove(ctx, p.ID, voter.ID))
	assert.Equal(t, []int{0, 0}, counts(env.poll(t, p.ID)))
	assert.ErrorIs(t, env.votes.Remove(ctx, p.ID, voter.ID), apperror.ErrNotFound, "second remove")

	assertLedgerConsistent(t, env, p.ID)
}

func TestCast_ConcurrentVotersKeepLedgerConsistent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B", "C", "D"})

	const voters = 16
	users := make([]*model.User, voters)
	for i := range users {
		users[i] = env.register(t, fmt.Sprintf("voter%02d", i), "Dhaka")
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u *model.User) {
			defer wg.Done()
			ctx := context.Background()
			// Each voter casts, switches twice, and odd voters withdraw.
			for _, option := range []int{i%4 + 1, (i+1)%4 + 1, (i+2)%4 + 1} {
				_, _, err := env.votes.Cast(ctx, p.ID, u.ID, option)
				assert.NoError(t, err)
			}
			if i%2 == 1 {
				assert.NoError(t, env.votes.Remove(ctx, p.ID, u.ID))
			}
		}(i, u)
	}
	wg.Wait()

	got := env.poll(t, p.ID)
	assert.Equal(t, voters/2, got.TotalVotes())
	assertLedgerConsistent(t, env, p.ID)
}

func TestCast_ConcurrentDuplicateCastCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	owner := env.register(t, "owner", "Dhaka")
	voter := env.register(t, "voter", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})

	const attempts = 20
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[model.VoteOutcome]int)
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := env.votes.Cast(context.Background(), p.ID, voter.ID, 1)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[model.VoteInserted], "exactly one cast inserts")
	assert.Equal(t, attempts-1, outcomes[model.VoteUnchanged])
	assert.Equal(t, []int{1, 0}, counts(env.poll(t, p.ID)))
	assertLedgerConsistent(t, env, p.ID)
}
