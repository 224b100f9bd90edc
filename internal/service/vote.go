package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/metrics"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

// VoteService is the vote ledger. It is the only caller that moves option
// tallies, and every move happens in the same transaction as the vote record
// change, so sum(tallies) always equals the number of active votes.
type VoteService struct {
	store  repository.Store
	locks  *PollLocks
	logger *slog.Logger
}

func NewVoteService(store repository.Store, locks *PollLocks, logger *slog.Logger) *VoteService {
	return &VoteService{
		store:  store,
		locks:  locks,
		logger: logger,
	}
}

// Cast records userID's choice on pollID, replacing any earlier choice.
// Casting the same option again changes nothing, votedAt included, so
// retries are safe. Every successful cast leaves a has-voted marker.
func (s *VoteService) Cast(ctx context.Context, pollID, userID string, option int) (*model.Vote, model.VoteOutcome, error) {
	var (
		vote    *model.Vote
		outcome model.VoteOutcome
	)
	err := lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		poll, err := tx.GetPoll(ctx, pollID)
		if err != nil {
			return err
		}
		if option < 1 || option > len(poll.Options) {
			return apperror.ValidationFailed("selectedOption",
				fmt.Sprintf("option must be between 1 and %d, got %d", len(poll.Options), option))
		}
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}

		existing, err := tx.GetVote(ctx, pollID, userID)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			vote = &model.Vote{PollID: pollID, UserID: userID, SelectedOption: option}
			if err := tx.CreateVote(ctx, vote); err != nil {
				return err
			}
			if err := tx.AdjustOptionCount(ctx, pollID, option, 1); err != nil {
				return err
			}
			outcome = model.VoteInserted
		case err != nil:
			return err
		case existing.SelectedOption == option:
			vote = existing
			outcome = model.VoteUnchanged
		default:
			if err := tx.AdjustOptionCount(ctx, pollID, existing.SelectedOption, -1); err != nil {
				return err
			}
			if err := tx.AdjustOptionCount(ctx, pollID, option, 1); err != nil {
				return err
			}
			now := time.Now().UTC()
			if err := tx.UpdateVoteOption(ctx, pollID, userID, option, now); err != nil {
				return err
			}
			existing.SelectedOption = option
			existing.VotedAt = now
			vote = existing
			outcome = model.VoteSwitched
		}

		return tx.MarkVoted(ctx, pollID, userID)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to cast vote", err,
			slog.String("pollID", pollID),
			slog.String("userID", userID),
		)
		return nil, 0, fmt.Errorf("casting vote on poll %s: %w", pollID, err)
	}

	metrics.VotesTotal.WithLabelValues(outcome.String()).Inc()
	s.logger.Info("vote cast",
		slog.String("pollID", pollID),
		slog.String("userID", userID),
		slog.Int("option", option),
		slog.String("outcome", outcome.String()),
	)
	return vote, outcome, nil
}

// Remove withdraws userID's active vote. The has-voted marker stays, so
// results the user has seen are not hidden again.
func (s *VoteService) Remove(ctx context.Context, pollID, userID string) error {
	err := lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		if _, err := tx.GetPoll(ctx, pollID); err != nil {
			return err
		}
		vote, err := tx.GetVote(ctx, pollID, userID)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.NotFound("vote on poll", pollID)
			}
			return err
		}
		if err := tx.AdjustOptionCount(ctx, pollID, vote.SelectedOption, -1); err != nil {
			return err
		}
		return tx.DeleteVote(ctx, pollID, userID)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to remove vote", err,
			slog.String("pollID", pollID),
			slog.String("userID", userID),
		)
		return fmt.Errorf("removing vote on poll %s: %w", pollID, err)
	}

	metrics.VotesTotal.WithLabelValues("removed").Inc()
	s.logger.Info("vote removed",
		slog.String("pollID", pollID),
		slog.String("userID", userID),
	)
	return nil
}
