package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
	"github.com/sakif/citypolls/internal/repository"
)

// CreatePoll inserts a poll with its options and tag links. ID and
// timestamps are generated here; option counts always start at zero
// regardless of what the caller passed.
func (t *tx) CreatePoll(ctx context.Context, poll *model.Poll) error {
	poll.ID = xid.New().String()
	now := time.Now().UTC()
	poll.CreatedAt = now
	poll.UpdatedAt = now
	poll.CommentCount = 0

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO polls (id, question, city, created_by, comment_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		poll.ID, poll.Question, poll.City, poll.CreatedBy, poll.CreatedAt, poll.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating poll: %w", err)
	}

	for i := range poll.Options {
		poll.Options[i].VoteCount = 0
	}
	if err := t.insertOptions(ctx, poll.ID, poll.Options); err != nil {
		return err
	}

	for _, tag := range poll.Tags {
		if _, err := t.q.ExecContext(ctx,
			`INSERT INTO poll_tags (poll_id, tag) VALUES (?, ?)`, poll.ID, tag,
		); err != nil {
			return fmt.Errorf("sqlite: tagging poll %s with %q: %w", poll.ID, tag, err)
		}
	}
	return nil
}

func (t *tx) insertOptions(ctx context.Context, pollID string, options []model.Option) error {
	for i, o := range options {
		_, err := t.q.ExecContext(ctx,
			`INSERT INTO poll_options (poll_id, position, text, vote_count) VALUES (?, ?, ?, ?)`,
			pollID, i+1, o.Text, o.VoteCount,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting option %d of poll %s: %w", i+1, pollID, err)
		}
	}
	return nil
}

// GetPoll loads one poll with options and tags.
func (t *tx) GetPoll(ctx context.Context, id string) (*model.Poll, error) {
	polls, err := t.loadPolls(ctx, "p.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(polls) == 0 {
		return nil, apperror.NotFound("poll", id)
	}
	return polls[0], nil
}

// ListPolls returns the polls matching filter in no particular order;
// ordering is the ranking package's job.
func (t *tx) ListPolls(ctx context.Context, filter repository.PollFilter) ([]*model.Poll, error) {
	conds := []string{"1 = 1"}
	var args []any
	if filter.City != "" {
		conds = append(conds, "p.city = ?")
		args = append(args, filter.City)
	}
	if filter.CreatedBy != "" {
		conds = append(conds, "p.created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.VotedBy != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM votes v WHERE v.poll_id = p.id AND v.user_id = ?)")
		args = append(args, filter.VotedBy)
	}
	return t.loadPolls(ctx, strings.Join(conds, " AND "), args...)
}

// loadPolls runs three queries sharing one WHERE clause over polls p: the
// poll rows, their options, and their tags, then stitches them together.
// where is always built from constant fragments; values go through args.
func (t *tx) loadPolls(ctx context.Context, where string, args ...any) ([]*model.Poll, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT p.id, p.question, p.city, p.created_by, COALESCE(u.username, ''),
		        p.comment_count, p.created_at, p.updated_at
		 FROM polls p LEFT JOIN users u ON u.id = p.created_by
		 WHERE `+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing polls: %w", err)
	}
	defer rows.Close()

	var polls []*model.Poll
	byID := make(map[string]*model.Poll)
	for rows.Next() {
		p := &model.Poll{Tags: []string{}}
		if err := rows.Scan(
			&p.ID, &p.Question, &p.City, &p.CreatedBy, &p.CreatedByUsername,
			&p.CommentCount, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning poll row: %w", err)
		}
		polls = append(polls, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating polls: %w", err)
	}
	if len(polls) == 0 {
		return polls, nil
	}

	if err := t.attachOptions(ctx, byID, where, args); err != nil {
		return nil, err
	}
	if err := t.attachTags(ctx, byID, where, args); err != nil {
		return nil, err
	}
	return polls, nil
}

func (t *tx) attachOptions(ctx context.Context, byID map[string]*model.Poll, where string, args []any) error {
	rows, err := t.q.QueryContext(ctx,
		`SELECT o.poll_id, o.text, o.vote_count
		 FROM poll_options o JOIN polls p ON p.id = o.poll_id
		 WHERE `+where+`
		 ORDER BY o.poll_id, o.position`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: listing poll options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pollID string
		var o model.Option
		if err := rows.Scan(&pollID, &o.Text, &o.VoteCount); err != nil {
			return fmt.Errorf("sqlite: scanning option row: %w", err)
		}
		if p, ok := byID[pollID]; ok {
			p.Options = append(p.Options, o)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating options: %w", err)
	}
	return nil
}

func (t *tx) attachTags(ctx context.Context, byID map[string]*model.Poll, where string, args []any) error {
	rows, err := t.q.QueryContext(ctx,
		`SELECT pt.poll_id, pt.tag
		 FROM poll_tags pt JOIN polls p ON p.id = pt.poll_id
		 WHERE `+where+`
		 ORDER BY pt.poll_id, pt.tag`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: listing poll tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pollID, tag string
		if err := rows.Scan(&pollID, &tag); err != nil {
			return fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		if p, ok := byID[pollID]; ok {
			p.Tags = append(p.Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return nil
}

// UpdatePollContent replaces question and options. Options are rewritten as
// given, counts included, so the caller decides which tallies survive.
func (t *tx) UpdatePollContent(ctx context.Context, poll *model.Poll) error {
	poll.UpdatedAt = time.Now().UTC()

	res, err := t.q.ExecContext(ctx,
		`UPDATE polls SET question = ?, updated_at = ? WHERE id = ?`,
		poll.Question, poll.UpdatedAt, poll.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating poll %s: %w", poll.ID, err)
	}
	if err := expectOne(res, "poll", poll.ID); err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM poll_options WHERE poll_id = ?`, poll.ID); err != nil {
		return fmt.Errorf("sqlite: clearing options of poll %s: %w", poll.ID, err)
	}
	return t.insertOptions(ctx, poll.ID, poll.Options)
}

// DeletePoll removes the poll row; options and tag links cascade. Votes,
// markers, and comments must already be gone or the foreign keys refuse.
func (t *tx) DeletePoll(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting poll %s: %w", id, err)
	}
	return expectOne(res, "poll", id)
}

// AdjustOptionCount changes one tally by delta. The CHECK constraint on
// vote_count rejects a change that would go negative.
func (t *tx) AdjustOptionCount(ctx context.Context, pollID string, option, delta int) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE poll_options SET vote_count = vote_count + ? WHERE poll_id = ? AND position = ?`,
		delta, pollID, option,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adjusting option %d of poll %s by %d: %w", option, pollID, delta, err)
	}
	return expectOne(res, "poll option", fmt.Sprintf("%s/%d", pollID, option))
}

func (t *tx) AdjustCommentCount(ctx context.Context, pollID string, delta int) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE polls SET comment_count = comment_count + ? WHERE id = ?`,
		delta, pollID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adjusting comment count of poll %s: %w", pollID, err)
	}
	return expectOne(res, "poll", pollID)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func noRows(err error) bool {
	return err == sql.ErrNoRows
}
