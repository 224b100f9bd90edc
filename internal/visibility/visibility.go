// Package visibility decides whether a viewer is shown a poll's results and
// builds the redacted view accordingly.
//
// The decision is a pure function of three inputs:
//
//   - the viewer's mode (LOCAL or EXPLORE),
//   - the viewing context (feed, own polls, own votes, public profile),
//   - the viewer's vote history on that poll.
//
// Only the feed is gated. Owner, voter, and profile contexts always reveal
// aggregate results.
//
// VOTE HISTORY, NOT LIVE VOTE:
// The gate keys on "has this viewer ever voted on the poll", which is backed
// by an append-only marker in storage. Withdrawing a vote does not re-hide
// results that the viewer already saw.
package visibility

import "github.com/sakif/citypolls/internal/model"

// Context is the logical screen a poll is being fetched for.
type Context int

const (
	Feed Context = iota
	MyPolls
	MyVotes
	PublicProfile
)

func (c Context) String() string {
	switch c {
	case Feed:
		return "FEED"
	case MyPolls:
		return "MY_POLLS"
	case MyVotes:
		return "MY_VOTES"
	case PublicProfile:
		return "PUBLIC_PROFILE"
	default:
		return "UNKNOWN"
	}
}

// History is the viewer's voting history on a single poll.
type History int

const (
	NeverVoted History = iota
	HasVotedAtLeastOnce
)

// HistoryOf converts a has-voted marker lookup into a History.
func HistoryOf(marked bool) History {
	if marked {
		return HasVotedAtLeastOnce
	}
	return NeverVoted
}

// ShouldRevealResults reports whether the viewer may see tallies.
func ShouldRevealResults(mode model.Mode, ctx Context, history History) bool {
	if ctx != Feed {
		return true
	}
	if mode == model.ModeExplore {
		return true
	}
	return history == HasVotedAtLeastOnce
}

// Percentages returns 100*count/total per option, or all zeros when nobody
// has voted.
func Percentages(counts []int) []float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	if total == 0 {
		return out
	}
	for i, c := range counts {
		out[i] = 100 * float64(c) / float64(total)
	}
	return out
}

// View builds the poll as this viewer sees it. Tallies are attached only when
// reveal is true.
func View(p *model.Poll, reveal bool) model.PollView {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	v := model.PollView{
		ID:       p.ID,
		Question: p.Question,
		Options:  make([]model.OptionView, len(p.Options)),
		City:     p.City,
		CreatedBy: model.Author{
			ID:       p.CreatedBy,
			Username: p.CreatedByUsername,
		},
		CreatedAt:      p.CreatedAt,
		Tags:           tags,
		CommentCount:   p.CommentCount,
		ResultsVisible: reveal,
	}

	counts := make([]int, len(p.Options))
	for i, o := range p.Options {
		counts[i] = o.VoteCount
		v.Options[i] = model.OptionView{Number: i + 1, Text: o.Text}
	}
	if !reveal {
		return v
	}

	pcts := Percentages(counts)
	total := p.TotalVotes()
	v.TotalVotes = &total
	for i := range v.Options {
		count, pct := counts[i], pcts[i]
		v.Options[i].VoteCount = &count
		v.Options[i].Percentage = &pct
	}
	return v
}
