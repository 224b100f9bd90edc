package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/metrics"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/ranking"
	"github.com/sakif/citypolls/internal/repository"
)

// PollService owns the poll lifecycle: create, edit, delete, get.
type PollService struct {
	store  repository.Store
	locks  *PollLocks
	logger *slog.Logger
}

func NewPollService(store repository.Store, locks *PollLocks, logger *slog.Logger) *PollService {
	return &PollService{
		store:  store,
		locks:  locks,
		logger: logger,
	}
}

// validateContent trims and checks a question with its option texts.
func validateContent(question string, options []string) (string, []model.Option, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", nil, apperror.ValidationFailed("question", "question is required")
	}
	if len(options) < model.MinOptions || len(options) > model.MaxOptions {
		return "", nil, apperror.ValidationFailed("options",
			fmt.Sprintf("a poll needs %d to %d options, got %d", model.MinOptions, model.MaxOptions, len(options)))
	}

	out := make([]model.Option, len(options))
	for i, text := range options {
		text = strings.TrimSpace(text)
		if text == "" {
			return "", nil, apperror.ValidationFailed("options", fmt.Sprintf("option %d must not be empty", i+1))
		}
		out[i] = model.Option{Text: text}
	}
	return question, out, nil
}

// Create stores a new poll in the owner's current city. Tags are trimmed,
// deduplicated and counted in the city's tag index in the same transaction.
func (s *PollService) Create(ctx context.Context, ownerID, question string, options, tags []string) (*model.Poll, error) {
	question, opts, err := validateContent(question, options)
	if err != nil {
		return nil, err
	}

	poll := &model.Poll{
		Question:  question,
		Options:   opts,
		CreatedBy: ownerID,
		Tags:      ranking.NormalizeTags(tags),
	}

	err = s.store.Update(ctx, func(tx repository.Tx) error {
		owner, err := tx.GetUserByID(ctx, ownerID)
		if err != nil {
			return err
		}
		poll.City = owner.City
		poll.CreatedByUsername = owner.Username

		if err := tx.CreatePoll(ctx, poll); err != nil {
			return err
		}
		for _, tag := range poll.Tags {
			if err := tx.IncrementTag(ctx, poll.City, tag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logUnexpected(s.logger, "failed to create poll", err, slog.String("ownerID", ownerID))
		return nil, fmt.Errorf("creating poll: %w", err)
	}

	metrics.PollsTotal.WithLabelValues("created").Inc()
	s.logger.Info("poll created",
		slog.String("id", poll.ID),
		slog.String("city", poll.City),
		slog.Int("options", len(poll.Options)),
	)
	return poll, nil
}

// Edit replaces the question and option texts. Options that keep their slot
// keep their tally; votes on slots the edit removed are deleted so tallies
// still match the ledger. Has-voted markers survive.
func (s *PollService) Edit(ctx context.Context, pollID, editorID, question string, options []string) (*model.Poll, error) {
	var (
		poll   *model.Poll
		purged int
	)
	err := lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		var err error
		poll, err = tx.GetPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if poll.CreatedBy != editorID {
			return apperror.Forbidden("only the poll's creator can edit it")
		}

		q, opts, err := validateContent(question, options)
		if err != nil {
			return err
		}
		for i := range opts {
			if i < len(poll.Options) {
				opts[i].VoteCount = poll.Options[i].VoteCount
			}
		}

		if len(opts) < len(poll.Options) {
			votes, err := tx.ListVotesByPoll(ctx, pollID)
			if err != nil {
				return err
			}
			for _, v := range votes {
				if v.SelectedOption <= len(opts) {
					continue
				}
				if err := tx.DeleteVote(ctx, pollID, v.UserID); err != nil {
					return err
				}
				purged++
			}
		}

		poll.Question = q
		poll.Options = opts
		return tx.UpdatePollContent(ctx, poll)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to edit poll", err, slog.String("id", pollID))
		return nil, fmt.Errorf("editing poll %s: %w", pollID, err)
	}

	metrics.PollsTotal.WithLabelValues("edited").Inc()
	metrics.PollsPurgedVotes.Add(float64(purged))
	s.logger.Info("poll edited",
		slog.String("id", pollID),
		slog.Int("options", len(poll.Options)),
		slog.Int("purgedVotes", purged),
	)
	return poll, nil
}

// Delete removes the poll with its votes, markers, comments and tag usage in
// one transaction.
func (s *PollService) Delete(ctx context.Context, pollID, requesterID string) error {
	err := lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		poll, err := tx.GetPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if poll.CreatedBy != requesterID {
			return apperror.Forbidden("only the poll's creator can delete it")
		}
		return deletePollCascade(ctx, tx, poll)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to delete poll", err, slog.String("id", pollID))
		return fmt.Errorf("deleting poll %s: %w", pollID, err)
	}

	metrics.PollsTotal.WithLabelValues("deleted").Inc()
	s.logger.Info("poll deleted", slog.String("id", pollID))
	return nil
}

// deletePollCascade is shared by poll and account deletion. The order matters:
// the foreign keys refuse to drop a poll that still has dependents.
func deletePollCascade(ctx context.Context, tx repository.Tx, poll *model.Poll) error {
	if _, err := tx.DeleteVotesByPoll(ctx, poll.ID); err != nil {
		return err
	}
	if err := tx.DeleteMarkersByPoll(ctx, poll.ID); err != nil {
		return err
	}
	if _, err := tx.DeleteCommentsByPoll(ctx, poll.ID); err != nil {
		return err
	}
	for _, tag := range poll.Tags {
		if err := tx.DecrementTag(ctx, poll.City, tag); err != nil {
			return err
		}
	}
	return tx.DeletePoll(ctx, poll.ID)
}

// Get returns the stored poll with its raw tallies.
func (s *PollService) Get(ctx context.Context, pollID string) (*model.Poll, error) {
	var poll *model.Poll
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		poll, err = tx.GetPoll(ctx, pollID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}
