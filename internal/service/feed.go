package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/ranking"
	"github.com/sakif/citypolls/internal/repository"
	"github.com/sakif/citypolls/internal/visibility"
)

// FeedService answers every poll listing. One listing is: load the candidate
// polls and the viewer's vote state in a single read transaction, narrow by
// tags and search text, rank, then redact per viewer.
type FeedService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewFeedService(store repository.Store, logger *slog.Logger) *FeedService {
	return &FeedService{
		store:  store,
		logger: logger,
	}
}

// scope says which polls a listing starts from.
type scope int

const (
	scopeCity      scope = iota // polls in the viewer's current city
	scopeCreatedBy              // polls created by the subject
	scopeVotedBy                // polls the subject currently has a vote on
)

type listing struct {
	scope            scope
	view             visibility.Context
	defaultKey       ranking.Key
	allowLatestVoted bool
	subjectID        string // owner of the listing; the viewer when empty
	tags             []string
	query            string
}

// Feed lists polls in the viewer's city. In LOCAL mode results stay hidden
// until the viewer has voted on the poll.
func (s *FeedService) Feed(ctx context.Context, viewerID, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:      scopeCity,
		view:       visibility.Feed,
		defaultKey: ranking.Latest,
	})
}

// Search is Feed narrowed to polls whose text or tags contain query.
func (s *FeedService) Search(ctx context.Context, viewerID, query, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:      scopeCity,
		view:       visibility.Feed,
		defaultKey: ranking.Latest,
		query:      query,
	})
}

// Filter is Feed narrowed to polls carrying every tag in tags, and matching
// query when it isn't blank.
func (s *FeedService) Filter(ctx context.Context, viewerID string, tags []string, query, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:      scopeCity,
		view:       visibility.Feed,
		defaultKey: ranking.Latest,
		tags:       ranking.NormalizeTags(tags),
		query:      query,
	})
}

func (s *FeedService) MyPolls(ctx context.Context, viewerID, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:      scopeCreatedBy,
		view:       visibility.MyPolls,
		defaultKey: ranking.Latest,
	})
}

// MyVotes lists polls the viewer has an active vote on, most recently voted
// first unless sortBy says otherwise.
func (s *FeedService) MyVotes(ctx context.Context, viewerID, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:            scopeVotedBy,
		view:             visibility.MyVotes,
		defaultKey:       ranking.LatestVoted,
		allowLatestVoted: true,
	})
}

// ProfileCreated lists polls created by subjectID, as seen by viewerID.
func (s *FeedService) ProfileCreated(ctx context.Context, viewerID, subjectID, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:      scopeCreatedBy,
		view:       visibility.PublicProfile,
		defaultKey: ranking.Latest,
		subjectID:  subjectID,
	})
}

// ProfileVoted lists polls subjectID has voted on. latestVoted orders by the
// subject's vote times; the attached vote state is still the viewer's.
func (s *FeedService) ProfileVoted(ctx context.Context, viewerID, subjectID, sortBy string) ([]model.PollWithVote, error) {
	return s.list(ctx, viewerID, sortBy, listing{
		scope:            scopeVotedBy,
		view:             visibility.PublicProfile,
		defaultKey:       ranking.Latest,
		allowLatestVoted: true,
		subjectID:        subjectID,
	})
}

// Poll returns one poll as viewerID sees it. The creator always sees
// results; anyone else gets the feed rule.
func (s *FeedService) Poll(ctx context.Context, viewerID, pollID string) (*model.PollWithVote, error) {
	var (
		viewer *model.User
		poll   *model.Poll
		vote   *model.Vote
		marked bool
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if viewer, err = tx.GetUserByID(ctx, viewerID); err != nil {
			return err
		}
		if poll, err = tx.GetPoll(ctx, pollID); err != nil {
			return err
		}
		vote, err = tx.GetVote(ctx, pollID, viewerID)
		if errors.Is(err, apperror.ErrNotFound) {
			vote, err = nil, nil
		}
		if err != nil {
			return err
		}
		marked, err = tx.HasVoted(ctx, pollID, viewerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting poll %s: %w", pollID, err)
	}

	view := visibility.Feed
	if poll.CreatedBy == viewerID {
		view = visibility.MyPolls
	}
	item := present(poll, vote, viewer.Mode, view, marked)
	return &item, nil
}

func (s *FeedService) list(ctx context.Context, viewerID, sortBy string, l listing) ([]model.PollWithVote, error) {
	key, err := ranking.ParseKey(sortBy, l.defaultKey, l.allowLatestVoted)
	if err != nil {
		return nil, err
	}
	subjectID := l.subjectID
	if subjectID == "" {
		subjectID = viewerID
	}

	var (
		viewer       *model.User
		polls        []*model.Poll
		viewerVotes  map[string]*model.Vote
		subjectVotes map[string]*model.Vote
		markers      map[string]struct{}
	)
	err = s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if viewer, err = tx.GetUserByID(ctx, viewerID); err != nil {
			return err
		}
		if subjectID != viewerID {
			if _, err := tx.GetUserByID(ctx, subjectID); err != nil {
				return err
			}
		}

		var filter repository.PollFilter
		switch l.scope {
		case scopeCity:
			filter.City = viewer.City
		case scopeCreatedBy:
			filter.CreatedBy = subjectID
		case scopeVotedBy:
			filter.VotedBy = subjectID
		}
		if polls, err = tx.ListPolls(ctx, filter); err != nil {
			return err
		}

		if viewerVotes, err = votesByPoll(ctx, tx, viewerID); err != nil {
			return err
		}
		subjectVotes = viewerVotes
		if subjectID != viewerID && key == ranking.LatestVoted {
			if subjectVotes, err = votesByPoll(ctx, tx, subjectID); err != nil {
				return err
			}
		}
		markers, err = tx.VotedPollIDs(ctx, viewerID)
		return err
	})
	if err != nil {
		logUnexpected(s.logger, "failed to list polls", err,
			slog.String("viewerID", viewerID),
			slog.String("context", l.view.String()),
		)
		return nil, fmt.Errorf("listing %s polls: %w", l.view, err)
	}

	polls = ranking.FilterByTags(polls, l.tags)
	polls = ranking.Search(polls, l.query)

	votedAt := func(pollID string) time.Time {
		if v, ok := subjectVotes[pollID]; ok {
			return v.VotedAt
		}
		return time.Time{}
	}
	if err := ranking.Sort(polls, key, votedAt); err != nil {
		return nil, err
	}

	out := make([]model.PollWithVote, 0, len(polls))
	for _, p := range polls {
		_, marked := markers[p.ID]
		out = append(out, present(p, viewerVotes[p.ID], viewer.Mode, l.view, marked))
	}
	return out, nil
}

func votesByPoll(ctx context.Context, tx repository.Tx, userID string) (map[string]*model.Vote, error) {
	votes, err := tx.ListVotesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*model.Vote, len(votes))
	for i := range votes {
		m[votes[i].PollID] = &votes[i]
	}
	return m, nil
}

// present builds the response item: the redacted poll plus the viewer's own
// vote state, which is never hidden.
func present(p *model.Poll, vote *model.Vote, mode model.Mode, view visibility.Context, marked bool) model.PollWithVote {
	reveal := visibility.ShouldRevealResults(mode, view, visibility.HistoryOf(marked))
	item := model.PollWithVote{Poll: visibility.View(p, reveal)}
	if vote != nil {
		option, votedAt := vote.SelectedOption, vote.VotedAt
		item.HasVoted = true
		item.SelectedOption = &option
		item.VotedAt = &votedAt
	}
	return item
}
