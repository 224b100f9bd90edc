// Package ranking orders and narrows poll collections: sort keys, tag
// filtering, and free-text search. Everything here is pure and works on
// slices the caller already loaded.
package ranking

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

// Key names a sort order.
type Key string

const (
	Latest      Key = "latest"
	Oldest      Key = "oldest"
	MostVoted   Key = "mostVoted"
	LatestVoted Key = "latestVoted"
)

// ParseKey resolves a sortBy query value. Matching is case-insensitive so the
// "latestvoted" spelling used by older clients still works. An empty value
// yields def. LatestVoted is only accepted when allowLatestVoted is set, i.e.
// in contexts where every poll has a vote by the subject user.
func ParseKey(raw string, def Key, allowLatestVoted bool) (Key, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	for _, k := range []Key{Latest, Oldest, MostVoted, LatestVoted} {
		if strings.EqualFold(raw, string(k)) {
			if k == LatestVoted && !allowLatestVoted {
				return "", apperror.ValidationFailed("sortBy",
					"sort key latestVoted is only available for voted polls")
			}
			return k, nil
		}
	}
	return "", apperror.ValidationFailed("sortBy", fmt.Sprintf("unknown sort key %q", raw))
}

// VotedAtFunc returns when the subject user last voted on a poll.
type VotedAtFunc func(pollID string) time.Time

// Sort orders polls in place. Every key ends in a tie-break on immutable
// fields, so the result is a strict total order independent of input order.
// votedAt is required for LatestVoted and ignored otherwise.
func Sort(polls []*model.Poll, key Key, votedAt VotedAtFunc) error {
	var compare func(a, b *model.Poll) int

	switch key {
	case Latest:
		compare = newestFirst
	case Oldest:
		compare = func(a, b *model.Poll) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		}
	case MostVoted:
		compare = func(a, b *model.Poll) int {
			if c := cmp.Compare(b.TotalVotes(), a.TotalVotes()); c != 0 {
				return c
			}
			return newestFirst(a, b)
		}
	case LatestVoted:
		if votedAt == nil {
			return apperror.ValidationFailed("sortBy",
				"sort key latestVoted is only available for voted polls")
		}
		compare = func(a, b *model.Poll) int {
			if c := votedAt(b.ID).Compare(votedAt(a.ID)); c != 0 {
				return c
			}
			return newestFirst(a, b)
		}
	default:
		return apperror.ValidationFailed("sortBy", fmt.Sprintf("unknown sort key %q", key))
	}

	slices.SortFunc(polls, compare)
	return nil
}

// newestFirst is createdAt descending, then id descending.
func newestFirst(a, b *model.Poll) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}
