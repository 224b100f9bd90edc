package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/auth"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

// UserService manages the signed-in user's profile and the public profile
// others see.
type UserService struct {
	store     repository.Store
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewUserService(store repository.Store, passwords *auth.PasswordService, logger *slog.Logger) *UserService {
	return &UserService{
		store:     store,
		passwords: passwords,
		logger:    logger,
	}
}

func (s *UserService) Me(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		user, err = tx.GetUserByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting user %s: %w", userID, err)
	}
	return user, nil
}

// modify loads the user, applies fn, and saves, all in one transaction.
func (s *UserService) modify(ctx context.Context, userID string, fn func(u *model.User) error) (*model.User, error) {
	var user *model.User
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		var err error
		if user, err = tx.GetUserByID(ctx, userID); err != nil {
			return err
		}
		if err := fn(user); err != nil {
			return err
		}
		return tx.UpdateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateCity moves the user. Only polls created afterwards and the feed use
// the new city; existing polls keep theirs.
func (s *UserService) UpdateCity(ctx context.Context, userID, city string) (*model.User, error) {
	city, err := validateCity(city)
	if err != nil {
		return nil, err
	}
	var from string
	user, err := s.modify(ctx, userID, func(u *model.User) error {
		from, u.City = u.City, city
		return nil
	})
	if err != nil {
		logUnexpected(s.logger, "failed to update city", err, slog.String("userID", userID))
		return nil, fmt.Errorf("updating city of user %s: %w", userID, err)
	}

	s.logger.Info("user city changed",
		slog.String("userID", userID),
		slog.String("from", from),
		slog.String("to", city),
	)
	return user, nil
}

// UpdateUsername renames the user; comments they wrote follow the new name.
func (s *UserService) UpdateUsername(ctx context.Context, userID, username string) (*model.User, error) {
	username, err := validateUsername(username)
	if err != nil {
		return nil, err
	}
	user, err := s.modify(ctx, userID, func(u *model.User) error {
		u.Username = username
		return nil
	})
	if err != nil {
		logUnexpected(s.logger, "failed to update username", err, slog.String("userID", userID))
		return nil, fmt.Errorf("updating username of user %s: %w", userID, err)
	}

	s.logger.Info("username changed",
		slog.String("userID", userID),
		slog.String("username", username),
	)
	return user, nil
}

// UpdatePassword requires the current password. The bcrypt work happens
// outside the write transaction.
func (s *UserService) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	current, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.passwords.Verify(current.PasswordHash, oldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apperror.ValidationFailed("oldPassword", "current password is incorrect")
		}
		return fmt.Errorf("checking password of user %s: %w", userID, err)
	}
	hash, err := hashPassword(s.passwords, "newPassword", newPassword)
	if err != nil {
		return err
	}

	_, err = s.modify(ctx, userID, func(u *model.User) error {
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		logUnexpected(s.logger, "failed to update password", err, slog.String("userID", userID))
		return fmt.Errorf("updating password of user %s: %w", userID, err)
	}

	s.logger.Info("password changed", slog.String("userID", userID))
	return nil
}

// ToggleMode flips between LOCAL and EXPLORE.
func (s *UserService) ToggleMode(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.modify(ctx, userID, func(u *model.User) error {
		u.Mode = u.Mode.Toggle()
		return nil
	})
	if err != nil {
		logUnexpected(s.logger, "failed to toggle mode", err, slog.String("userID", userID))
		return nil, fmt.Errorf("toggling mode of user %s: %w", userID, err)
	}

	s.logger.Info("mode toggled",
		slog.String("userID", userID),
		slog.String("mode", string(user.Mode)),
	)
	return user, nil
}

// DeleteAccount removes the user and everything hanging off them in one
// transaction: their polls with full cascade, their remaining votes with the
// tallies they contributed, their markers, and their comments with the
// counts on the polls they commented on.
//
// No poll locks are taken; the write transaction alone serializes this
// against concurrent votes because SQLite has a single writer.
func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	var pollsDeleted, votesRemoved, commentsRemoved int
	err := s.store.Update(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUserByID(ctx, userID); err != nil {
			return err
		}

		own, err := tx.ListPolls(ctx, repository.PollFilter{CreatedBy: userID})
		if err != nil {
			return err
		}
		for _, p := range own {
			if err := deletePollCascade(ctx, tx, p); err != nil {
				return err
			}
		}
		pollsDeleted = len(own)

		votes, err := tx.ListVotesByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, v := range votes {
			if err := tx.AdjustOptionCount(ctx, v.PollID, v.SelectedOption, -1); err != nil {
				return err
			}
			if err := tx.DeleteVote(ctx, v.PollID, userID); err != nil {
				return err
			}
		}
		votesRemoved = len(votes)

		if err := tx.DeleteMarkersByUser(ctx, userID); err != nil {
			return err
		}

		comments, err := tx.ListCommentsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, c := range comments {
			if err := tx.DeleteComment(ctx, c.ID); err != nil {
				return err
			}
			if err := tx.AdjustCommentCount(ctx, c.PollID, -1); err != nil {
				return err
			}
		}
		commentsRemoved = len(comments)

		return tx.DeleteUser(ctx, userID)
	})
	if err != nil {
		logUnexpected(s.logger, "failed to delete account", err, slog.String("userID", userID))
		return fmt.Errorf("deleting account %s: %w", userID, err)
	}

	s.logger.Info("account deleted",
		slog.String("userID", userID),
		slog.Int("polls", pollsDeleted),
		slog.Int("votes", votesRemoved),
		slog.Int("comments", commentsRemoved),
	)
	return nil
}

// PublicProfile summarises where a user is active. Each city's percentage is
// its share of the user's created plus currently voted polls.
func (s *UserService) PublicProfile(ctx context.Context, username string) (*model.PublicProfile, error) {
	var (
		user           *model.User
		created, voted []*model.Poll
	)
	err := s.store.View(ctx, func(tx repository.Tx) error {
		var err error
		if user, err = tx.GetUserByUsername(ctx, username); err != nil {
			return err
		}
		if created, err = tx.ListPolls(ctx, repository.PollFilter{CreatedBy: user.ID}); err != nil {
			return err
		}
		voted, err = tx.ListPolls(ctx, repository.PollFilter{VotedBy: user.ID})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting profile of %q: %w", username, err)
	}

	return &model.PublicProfile{
		ID:                     user.ID,
		Username:               user.Username,
		City:                   user.City,
		TotalPollsCreatedCount: len(created),
		TotalPollsVotedCount:   len(voted),
		ActiveCities:           cityActivity(created, voted),
	}, nil
}

// cityActivity orders cities by activity, then name.
func cityActivity(created, voted []*model.Poll) []model.CityActivity {
	byCity := make(map[string]*model.CityActivity)
	entry := func(city string) *model.CityActivity {
		a, ok := byCity[city]
		if !ok {
			a = &model.CityActivity{City: city}
			byCity[city] = a
		}
		return a
	}
	for _, p := range created {
		entry(p.City).PollsCreatedCount++
	}
	for _, p := range voted {
		entry(p.City).PollsVotedCount++
	}

	total := len(created) + len(voted)
	out := make([]model.CityActivity, 0, len(byCity))
	for _, a := range byCity {
		a.Percentage = 100 * float64(a.PollsCreatedCount+a.PollsVotedCount) / float64(total)
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b model.CityActivity) int {
		if c := cmp.Compare(b.PollsCreatedCount+b.PollsVotedCount, a.PollsCreatedCount+a.PollsVotedCount); c != 0 {
			return c
		}
		return cmp.Compare(a.City, b.City)
	})
	return out
}
