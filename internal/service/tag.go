package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

const (
	DefaultPopularTagsLimit = 10
	MaxPopularTagsLimit     = 100
)

// TagService answers tag popularity questions. Tag counts themselves are
// maintained by PollService.
type TagService struct {
	store        repository.Store
	defaultLimit int
	logger       *slog.Logger
}

// NewTagService uses defaultLimit when a caller passes limit <= 0.
func NewTagService(store repository.Store, defaultLimit int, logger *slog.Logger) *TagService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPopularTagsLimit
	}
	return &TagService{
		store:        store,
		defaultLimit: min(defaultLimit, MaxPopularTagsLimit),
		logger:       logger,
	}
}

func (s *TagService) clamp(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return min(limit, MaxPopularTagsLimit)
}

// Popular lists city's tags by usage, most used first, name breaking ties.
func (s *TagService) Popular(ctx context.Context, city string, limit int) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		tags, err = tx.PopularTags(ctx, city, s.clamp(limit))
		return err
	})
	if err != nil {
		logUnexpected(s.logger, "failed to list popular tags", err, slog.String("city", city))
		return nil, fmt.Errorf("listing popular tags in %s: %w", city, err)
	}
	return tags, nil
}

// PopularForUser is Popular for the user's current city.
func (s *TagService) PopularForUser(ctx context.Context, userID string, limit int) ([]model.Tag, error) {
	var tags []model.Tag
	err := s.store.View(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		tags, err = tx.PopularTags(ctx, user.City, s.clamp(limit))
		return err
	})
	if err != nil {
		logUnexpected(s.logger, "failed to list popular tags", err, slog.String("userID", userID))
		return nil, fmt.Errorf("listing popular tags: %w", err)
	}
	return tags, nil
}
