// Package repository declares the storage contract the services depend on.
//
// All access goes through a Store, which hands out a Tx scoped to exactly one
// transaction:
//
//   - Update runs fn inside a single write transaction. Any error returned by
//     fn (or a panic) rolls everything back, so a failed operation never
//     partially applies.
//   - View runs fn inside a read transaction, giving fn a consistent snapshot:
//     tallies and vote records read inside one View always agree.
//
// Write methods called inside View fail.
package repository

import (
	"context"
	"time"

	"github.com/sakif/citypolls/internal/model"
)

type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	PollRepository
	VoteRepository
	CommentRepository
	TagRepository
	UserRepository
}

// PollFilter selects polls for a listing. Zero-value fields don't filter.
type PollFilter struct {
	City      string
	CreatedBy string
	VotedBy   string // only polls this user currently has an active vote on
}

type PollRepository interface {
	// CreatePoll assigns ID and timestamps, then stores the poll with its
	// options (counts start at zero) and tag links.
	CreatePoll(ctx context.Context, poll *model.Poll) error
	GetPoll(ctx context.Context, id string) (*model.Poll, error)
	ListPolls(ctx context.Context, filter PollFilter) ([]*model.Poll, error)
	// UpdatePollContent rewrites question and option rows, including each
	// option's VoteCount as given. Used by edit after orphaned votes are purged.
	UpdatePollContent(ctx context.Context, poll *model.Poll) error
	DeletePoll(ctx context.Context, id string) error
	// AdjustOptionCount adds delta to the tally of option number (1-indexed).
	AdjustOptionCount(ctx context.Context, pollID string, option, delta int) error
	AdjustCommentCount(ctx context.Context, pollID string, delta int) error
}

type VoteRepository interface {
	GetVote(ctx context.Context, pollID, userID string) (*model.Vote, error)
	CreateVote(ctx context.Context, vote *model.Vote) error
	// UpdateVoteOption moves an existing vote and refreshes its votedAt.
	UpdateVoteOption(ctx context.Context, pollID, userID string, option int, votedAt time.Time) error
	DeleteVote(ctx context.Context, pollID, userID string) error
	ListVotesByUser(ctx context.Context, userID string) ([]model.Vote, error)
	ListVotesByPoll(ctx context.Context, pollID string) ([]model.Vote, error)
	CountVotes(ctx context.Context, pollID string) (int, error)
	DeleteVotesByPoll(ctx context.Context, pollID string) (int64, error)

	// MarkVoted records that userID has voted on pollID at least once.
	// Repeated calls are no-ops.
	MarkVoted(ctx context.Context, pollID, userID string) error
	// VotedPollIDs returns the set of polls userID has ever voted on.
	VotedPollIDs(ctx context.Context, userID string) (map[string]struct{}, error)
	// HasVoted reports whether userID has a marker on pollID.
	HasVoted(ctx context.Context, pollID, userID string) (bool, error)
	DeleteMarkersByPoll(ctx context.Context, pollID string) error
	DeleteMarkersByUser(ctx context.Context, userID string) error
}

type CommentRepository interface {
	CreateComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	// ListComments returns newest first.
	ListComments(ctx context.Context, pollID string) ([]model.Comment, error)
	ListCommentsByUser(ctx context.Context, userID string) ([]model.Comment, error)
	DeleteComment(ctx context.Context, id string) error
	DeleteCommentsByPoll(ctx context.Context, pollID string) (int64, error)
}

type TagRepository interface {
	// IncrementTag creates the (city, name) row on first use.
	IncrementTag(ctx context.Context, city, name string) error
	// DecrementTag removes the row once its usage count reaches zero.
	DecrementTag(ctx context.Context, city, name string) error
	// PopularTags orders by usage descending, then name ascending.
	PopularTags(ctx context.Context, city string, limit int) ([]model.Tag, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	DeleteUser(ctx context.Context, id string) error
}
