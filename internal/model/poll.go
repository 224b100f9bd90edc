// Package model defines the data structures shared by the repository,
// service, and handler layers.
package model

import "time"

// Option bounds for a poll.
const (
	MinOptions = 2
	MaxOptions = 4
)

// Poll is a multiple-choice question scoped to the city of its creator.
//
// Options is ordered: option number N (1-indexed, as voters see it) lives at
// Options[N-1]. VoteCount fields are only ever written by the repository on
// behalf of the vote ledger; callers treat them as read-only.
type Poll struct {
	ID                string    `json:"id"`
	Question          string    `json:"question"`
	Options           []Option  `json:"options"`
	City              string    `json:"city"`
	CreatedBy         string    `json:"createdBy"`
	CreatedByUsername string    `json:"createdByUsername"`
	Tags              []string  `json:"tags"`
	CommentCount      int       `json:"commentCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Option is one answer slot of a poll together with its tally.
type Option struct {
	Text      string `json:"text"`
	VoteCount int    `json:"voteCount"`
}

// TotalVotes sums the tally across all options.
func (p *Poll) TotalVotes() int {
	total := 0
	for _, o := range p.Options {
		total += o.VoteCount
	}
	return total
}

// HasTag reports whether the poll carries the given tag (case-sensitive).
func (p *Poll) HasTag(name string) bool {
	for _, t := range p.Tags {
		if t == name {
			return true
		}
	}
	return false
}

// Tag is a per-city usage counter. A tag row exists only while at least one
// live poll in the city carries the name.
type Tag struct {
	Name       string `json:"name"`
	City       string `json:"city"`
	UsageCount int    `json:"usageCount"`
}
