package model

import "time"

// PollView is a poll as shown to one particular viewer.
//
// When results are hidden the tally fields are nil and drop out of the JSON.
// A visible poll with no votes yet carries explicit zeros, so "hidden" and
// "nobody voted" stay distinguishable.
type PollView struct {
	ID             string       `json:"id"`
	Question       string       `json:"question"`
	Options        []OptionView `json:"options"`
	City           string       `json:"city"`
	CreatedBy      Author       `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	Tags           []string     `json:"tags"`
	CommentCount   int          `json:"commentCount"`
	TotalVotes     *int         `json:"totalVotes,omitempty"`
	ResultsVisible bool         `json:"resultsVisible"`
}

type OptionView struct {
	Number     int      `json:"number"`
	Text       string   `json:"text"`
	VoteCount  *int     `json:"voteCount,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
}

type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// PollWithVote pairs a poll view with the viewer's own vote state, which is
// always exposed so the voting controls keep working under hidden results.
type PollWithVote struct {
	Poll           PollView   `json:"poll"`
	HasVoted       bool       `json:"hasVoted"`
	SelectedOption *int       `json:"selectedOption,omitempty"`
	VotedAt        *time.Time `json:"votedAt,omitempty"`
}
