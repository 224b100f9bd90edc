package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/metrics"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

const MaxCommentLength = 1000

// CommentService manages the discussion thread under each poll and keeps the
// poll's commentCount in step with it.
type CommentService struct {
	store  repository.Store
	locks  *PollLocks
	logger *slog.Logger
}

func NewCommentService(store repository.Store, locks *PollLocks, logger *slog.Logger) *CommentService {
	return &CommentService{
		store:  store,
		locks:  locks,
		logger: logger,
	}
}

func (s *CommentService) Add(ctx context.Context, pollID, authorID, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "comment must not be empty")
	}
	if utf8.RuneCountInString(content) > MaxCommentLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("comment must be %d characters or less", MaxCommentLength))
	}

	comment := &model.Comment{PollID: pollID, UserID: authorID, Content: content}
	err := lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		if _, err := tx.GetPoll(ctx, pollID); err != nil {
			return err
		}
		author, err := tx.GetUserByID(ctx, authorID)
		if err != nil {
			return err
		}
		comment.Username = author.Username

		if err := tx.CreateComment(ctx, comment); err != nil {
			return err
		}
		return tx.AdjustCommentCount(ctx, pollID, 1)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to add comment", err, slog.String("pollID", pollID))
		return nil, fmt.Errorf("adding comment to poll %s: %w", pollID, err)
	}

	metrics.CommentsTotal.WithLabelValues("added").Inc()
	s.logger.Info("comment added",
		slog.String("id", comment.ID),
		slog.String("pollID", pollID),
	)
	return comment, nil
}

// List returns the poll's comments, newest first.
func (s *CommentService) List(ctx context.Context, pollID string) ([]model.Comment, error) {
	var comments []model.Comment
	err := s.store.View(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetPoll(ctx, pollID); err != nil {
			return err
		}
		var err error
		comments, err = tx.ListComments(ctx, pollID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing comments of poll %s: %w", pollID, err)
	}
	return comments, nil
}

// Delete removes a comment. Only its author may do so.
func (s *CommentService) Delete(ctx context.Context, commentID, requesterID string) error {
	// The poll id is needed to pick the lock; the comment is read again
	// under the lock in case it went away meanwhile.
	var pollID string
	err := s.store.View(ctx, func(tx repository.Tx) error {
		c, err := tx.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		pollID = c.PollID
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting comment %s: %w", commentID, err)
	}

	err = lockedUpdate(ctx, s.locks, s.store, pollID, func(tx repository.Tx) error {
		c, err := tx.GetComment(ctx, commentID)
		if err != nil {
			return err
		}
		if c.UserID != requesterID {
			return apperror.Forbidden("only the author can delete this comment")
		}
		if err := tx.DeleteComment(ctx, commentID); err != nil {
			return err
		}
		return tx.AdjustCommentCount(ctx, c.PollID, -1)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to delete comment", err, slog.String("id", commentID))
		return fmt.Errorf("deleting comment %s: %w", commentID, err)
	}

	metrics.CommentsTotal.WithLabelValues("deleted").Inc()
	s.logger.Info("comment deleted",
		slog.String("id", commentID),
		slog.String("pollID", pollID),
	)
	return nil
}
