package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

func pollIDs(items []model.PollWithVote) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Poll.ID
	}
	return out
}

func find(t *testing.T, items []model.PollWithVote, id string) model.PollWithVote {
	t.Helper()
	for _, it := range items {
		if it.Poll.ID == id {
			return it
		}
	}
	t.Fatalf("poll %s not in listing", id)
	return model.PollWithVote{}
}

func TestFeed_SixtyFortyPercentages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	p := env.createPoll(t, owner, "Tea or coffee?", []string{"Tea", "Coffee"})

	voters := make([]*model.User, 5)
	for i, option := range []int{1, 1, 1, 2, 2} {
		voters[i] = env.register(t, "voter"+string(rune('a'+i)), "Dhaka")
		env.cast(t, p, voters[i], option)
	}

	items, err := env.feed.MyPolls(ctx, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	view := items[0].Poll
	require.True(t, view.ResultsVisible)
	require.NotNil(t, view.TotalVotes)
	assert.Equal(t, 5, *view.TotalVotes)
	assert.Equal(t, 3, *view.Options[0].VoteCount)
	assert.InDelta(t, 60.0, *view.Options[0].Percentage, 1e-9)
	assert.InDelta(t, 40.0, *view.Options[1].Percentage, 1e-9)

	// One tea drinker switches; the total holds and the split flips.
	assert.Equal(t, model.VoteSwitched, env.cast(t, p, voters[0], 2))

	items, err = env.feed.MyPolls(ctx, owner.ID, "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	view = items[0].Poll
	require.NotNil(t, view.TotalVotes)
	assert.Equal(t, 5, *view.TotalVotes)
	assert.Equal(t, 2, *view.Options[0].VoteCount)
	assert.Equal(t, 3, *view.Options[1].VoteCount)
	assert.InDelta(t, 40.0, *view.Options[0].Percentage, 1e-9)
	assert.InDelta(t, 60.0, *view.Options[1].Percentage, 1e-9)
	assertLedgerConsistent(t, env, p.ID)
}

func TestFeed_LocalModeRevealsAfterVoteAndNeverHidesAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	viewer := env.register(t, "viewer", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})
	env.cast(t, p, owner, 1)

	hidden := find(t, mustFeed(t, env, viewer.ID), p.ID)
	assert.False(t, hidden.Poll.ResultsVisible)
	assert.Nil(t, hidden.Poll.TotalVotes, "hidden results are absent, not zero")
	assert.Nil(t, hidden.Poll.Options[0].VoteCount)
	assert.Nil(t, hidden.Poll.Options[0].Percentage)
	assert.Equal(t, "A", hidden.Poll.Options[0].Text, "option texts stay visible")
	assert.False(t, hidden.HasVoted)

	env.cast(t, p, viewer, 2)
	shown := find(t, mustFeed(t, env, viewer.ID), p.ID)
	assert.True(t, shown.Poll.ResultsVisible)
	assert.Equal(t, 2, *shown.Poll.TotalVotes)
	assert.True(t, shown.HasVoted)
	assert.Equal(t, 2, *shown.SelectedOption)
	assert.NotNil(t, shown.VotedAt)

	require.NoError(t, env.votes.Remove(ctx, p.ID, viewer.ID))
	after := find(t, mustFeed(t, env, viewer.ID), p.ID)
	assert.True(t, after.Poll.ResultsVisible, "withdrawing a vote does not re-hide results")
	assert.False(t, after.HasVoted)
	assert.Nil(t, after.SelectedOption)
	assert.Equal(t, 1, *after.Poll.TotalVotes)
}

func mustFeed(t *testing.T, env *testEnv, viewerID string) []model.PollWithVote {
	t.Helper()
	items, err := env.feed.Feed(context.Background(), viewerID, "")
	require.NoError(t, err)
	return items
}

func TestFeed_ExploreModeAlwaysReveals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	viewer := env.register(t, "viewer", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})

	_, err := env.users.ToggleMode(ctx, viewer.ID)
	require.NoError(t, err)

	item := find(t, mustFeed(t, env, viewer.ID), p.ID)
	assert.True(t, item.Poll.ResultsVisible)
	require.NotNil(t, item.Poll.TotalVotes)
	assert.Equal(t, 0, *item.Poll.TotalVotes)
	assert.Equal(t, 0.0, *item.Poll.Options[0].Percentage, "no votes means 0%")
}

func TestFeed_ScopedToViewersCity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dhaka := env.register(t, "dhaka", "Dhaka")
	ctg := env.register(t, "ctg", "Chittagong")
	inDhaka := env.createPoll(t, dhaka, "Dhaka?", []string{"A", "B"})
	inCtg := env.createPoll(t, ctg, "Ctg?", []string{"A", "B"})

	assert.Equal(t, []string{inDhaka.ID}, pollIDs(mustFeed(t, env, dhaka.ID)))

	// Moving changes the feed; existing polls keep their city.
	_, err := env.users.UpdateCity(ctx, dhaka.ID, "Chittagong")
	require.NoError(t, err)
	assert.Equal(t, []string{inCtg.ID}, pollIDs(mustFeed(t, env, dhaka.ID)))
	assert.Equal(t, "Dhaka", env.poll(t, inDhaka.ID).City)
}

func TestFeed_Sorting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	v1 := env.register(t, "v1", "Dhaka")
	v2 := env.register(t, "v2", "Dhaka")

	older := env.createPoll(t, owner, "Older?", []string{"A", "B"})
	time.Sleep(2 * time.Millisecond)
	newer := env.createPoll(t, owner, "Newer?", []string{"A", "B"})
	time.Sleep(2 * time.Millisecond)
	newest := env.createPoll(t, owner, "Newest?", []string{"A", "B"})

	env.cast(t, older, v1, 1)
	env.cast(t, older, v2, 1)
	env.cast(t, newer, v1, 2)
	env.cast(t, newest, v2, 2)

	tests := []struct {
		sortBy string
		want   []string
	}{
		{"", []string{newest.ID, newer.ID, older.ID}},
		{"latest", []string{newest.ID, newer.ID, older.ID}},
		{"oldest", []string{older.ID, newer.ID, newest.ID}},
		// newer and newest tie on one vote; the newer poll wins.
		{"mostVoted", []string{older.ID, newest.ID, newer.ID}},
		{"MOSTVOTED", []string{older.ID, newest.ID, newer.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.sortBy, func(t *testing.T) {
			items, err := env.feed.Feed(ctx, owner.ID, tt.sortBy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pollIDs(items))
		})
	}

	_, err := env.feed.Feed(ctx, owner.ID, "latestVoted")
	assert.ErrorIs(t, err, apperror.ErrValidation, "latestVoted is only for voted listings")
	_, err = env.feed.Feed(ctx, owner.ID, "popular")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestMyVotes_DefaultsToLatestVoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	voter := env.register(t, "voter", "Dhaka")

	a := env.createPoll(t, owner, "A?", []string{"A", "B"})
	b := env.createPoll(t, owner, "B?", []string{"A", "B"})
	env.createPoll(t, owner, "Not voted?", []string{"A", "B"})

	env.cast(t, b, voter, 1)
	time.Sleep(2 * time.Millisecond)
	env.cast(t, a, voter, 1)

	items, err := env.feed.MyVotes(ctx, voter.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, pollIDs(items))
	for _, it := range items {
		assert.True(t, it.Poll.ResultsVisible)
		assert.True(t, it.HasVoted)
	}

	items, err = env.feed.MyVotes(ctx, voter.ID, "latestvoted")
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, pollIDs(items), "case-insensitive key")

	// Switching refreshes votedAt and moves b to the front.
	time.Sleep(2 * time.Millisecond)
	env.cast(t, b, voter, 2)
	items, err = env.feed.MyVotes(ctx, voter.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, pollIDs(items))
}

func TestFilterAndSearch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")

	food := env.createPoll(t, owner, "Best fuchka?", []string{"Dhanmondi", "Gulshan"}, "food")
	foodStreet := env.createPoll(t, owner, "Best chotpoti?", []string{"Mirpur", "Uttara"}, "food", "street")
	sports := env.createPoll(t, owner, "Cricket or football?", []string{"Cricket", "Football"}, "sports")

	t.Run("AND semantics narrows", func(t *testing.T) {
		one, err := env.feed.Filter(ctx, owner.ID, []string{"food"}, "", "")
		require.NoError(t, err)
		two, err := env.feed.Filter(ctx, owner.ID, []string{"food", "street"}, "", "")
		require.NoError(t, err)

		assert.ElementsMatch(t, []string{food.ID, foodStreet.ID}, pollIDs(one))
		assert.Equal(t, []string{foodStreet.ID}, pollIDs(two))
	})

	t.Run("no tags keeps everything", func(t *testing.T) {
		all, err := env.feed.Filter(ctx, owner.ID, nil, "", "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("tags with query", func(t *testing.T) {
		got, err := env.feed.Filter(ctx, owner.ID, []string{"food"}, "MIRPUR", "")
		require.NoError(t, err)
		assert.Equal(t, []string{foodStreet.ID}, pollIDs(got))
	})

	t.Run("search matches question options and tags", func(t *testing.T) {
		got, err := env.feed.Search(ctx, owner.ID, "cricket", "")
		require.NoError(t, err)
		assert.Equal(t, []string{sports.ID}, pollIDs(got))

		got, err = env.feed.Search(ctx, owner.ID, "street", "")
		require.NoError(t, err)
		assert.Equal(t, []string{foodStreet.ID}, pollIDs(got))

		got, err = env.feed.Search(ctx, owner.ID, "  ", "")
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestProfileListings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	subject := env.register(t, "subject", "Dhaka")
	viewer := env.register(t, "viewer", "Sylhet")

	created := env.createPoll(t, subject, "Mine?", []string{"A", "B"})
	other := env.createPoll(t, viewer, "Viewer's?", []string{"A", "B"})
	env.cast(t, other, subject, 1)

	got, err := env.feed.ProfileCreated(ctx, viewer.ID, subject.ID, "")
	require.NoError(t, err)
	assert.Equal(t, []string{created.ID}, pollIDs(got))
	assert.True(t, got[0].Poll.ResultsVisible, "profile context always reveals")
	assert.False(t, got[0].HasVoted, "vote state is the viewer's")

	got, err = env.feed.ProfileVoted(ctx, viewer.ID, subject.ID, "latestVoted")
	require.NoError(t, err)
	assert.Equal(t, []string{other.ID}, pollIDs(got))

	_, err = env.feed.ProfileCreated(ctx, viewer.ID, "ghost", "")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = env.feed.ProfileCreated(ctx, viewer.ID, subject.ID, "latestVoted")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestFeedPoll_SingleFetch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "owner", "Dhaka")
	viewer := env.register(t, "viewer", "Dhaka")
	p := env.createPoll(t, owner, "Q?", []string{"A", "B"})

	asOwner, err := env.feed.Poll(ctx, owner.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, asOwner.Poll.ResultsVisible, "creators see their own results")

	asViewer, err := env.feed.Poll(ctx, viewer.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, asViewer.Poll.ResultsVisible)

	// A vote on another poll says nothing about this one.
	other := env.createPoll(t, owner, "Other?", []string{"A", "B"})
	env.cast(t, other, viewer, 1)
	asViewer, err = env.feed.Poll(ctx, viewer.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, asViewer.HasVoted)
	assert.False(t, asViewer.Poll.ResultsVisible)

	env.cast(t, p, viewer, 2)
	asViewer, err = env.feed.Poll(ctx, viewer.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, asViewer.HasVoted)
	assert.Equal(t, 2, *asViewer.SelectedOption)
	assert.True(t, asViewer.Poll.ResultsVisible)

	require.NoError(t, env.votes.Remove(ctx, p.ID, viewer.ID))
	asViewer, err = env.feed.Poll(ctx, viewer.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, asViewer.HasVoted)
	assert.Nil(t, asViewer.SelectedOption)
	assert.True(t, asViewer.Poll.ResultsVisible, "results stay visible after the vote is removed")

	_, err = env.feed.Poll(ctx, viewer.ID, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
