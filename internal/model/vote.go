package model

import "time"

// Vote is the single active vote of a user on a poll.
// SelectedOption is 1-indexed and never exceeds the poll's option count.
type Vote struct {
	ID             string    `json:"id"`
	PollID         string    `json:"pollId"`
	UserID         string    `json:"userId"`
	SelectedOption int       `json:"selectedOption"`
	VotedAt        time.Time `json:"votedAt"`
}

// VoteOutcome describes what a cast did to the ledger.
type VoteOutcome int

const (
	VoteInserted  VoteOutcome = iota // first vote by this user on the poll
	VoteSwitched                     // existing vote moved to another option
	VoteUnchanged                    // same option cast again; nothing changed
)

func (o VoteOutcome) String() string {
	switch o {
	case VoteInserted:
		return "inserted"
	case VoteSwitched:
		return "switched"
	case VoteUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}
