package ranking

import (
	"strings"

	"github.com/sakif/citypolls/internal/model"
)

// FilterByTags keeps polls whose tag set contains every required tag.
// Adding tags to required can only shrink the result. An empty required set
// keeps everything. The input slice is not modified.
func FilterByTags(polls []*model.Poll, required []string) []*model.Poll {
	out := make([]*model.Poll, 0, len(polls))
	for _, p := range polls {
		if hasAll(p, required) {
			out = append(out, p)
		}
	}
	return out
}

func hasAll(p *model.Poll, required []string) bool {
	for _, tag := range required {
		if !p.HasTag(tag) {
			return false
		}
	}
	return true
}

// Search keeps polls whose question, option texts, or tags contain the query,
// ignoring case. A blank query keeps everything.
func Search(polls []*model.Poll, query string) []*model.Poll {
	query = strings.ToLower(strings.TrimSpace(query))
	out := make([]*model.Poll, 0, len(polls))
	for _, p := range polls {
		if query == "" || matches(p, query) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p *model.Poll, lowered string) bool {
	if strings.Contains(strings.ToLower(p.Question), lowered) {
		return true
	}
	for _, o := range p.Options {
		if strings.Contains(strings.ToLower(o.Text), lowered) {
			return true
		}
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), lowered) {
			return true
		}
	}
	return false
}

// NormalizeTags trims names, drops blanks, and removes duplicates while
// keeping first-seen order. Names stay case-sensitive.
func NormalizeTags(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// SplitTags parses the comma-separated tags query parameter.
func SplitTags(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(csv, ","))
}
