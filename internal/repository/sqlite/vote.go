package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

const voteColumns = `id, poll_id, user_id, selected_option, voted_at`

func scanVote(s scanner) (model.Vote, error) {
	var v model.Vote
	err := s.Scan(&v.ID, &v.PollID, &v.UserID, &v.SelectedOption, &v.VotedAt)
	return v, err
}

// GetVote returns the active vote of userID on pollID.
func (t *tx) GetVote(ctx context.Context, pollID, userID string) (*model.Vote, error) {
	v, err := scanVote(t.q.QueryRowContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE poll_id = ? AND user_id = ?`,
		pollID, userID,
	))
	if err != nil {
		if noRows(err) {
			return nil, apperror.NotFound("vote", pollID+"/"+userID)
		}
		return nil, fmt.Errorf("sqlite: getting vote on poll %s: %w", pollID, err)
	}
	return &v, nil
}

// CreateVote inserts a vote. The UNIQUE (poll_id, user_id) constraint backs
// the one-active-vote rule; a violation surfaces as Conflict.
func (t *tx) CreateVote(ctx context.Context, vote *model.Vote) error {
	vote.ID = xid.New().String()
	if vote.VotedAt.IsZero() {
		vote.VotedAt = time.Now().UTC()
	}

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO votes (`+voteColumns+`) VALUES (?, ?, ?, ?, ?)`,
		vote.ID, vote.PollID, vote.UserID, vote.SelectedOption, vote.VotedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("vote", vote.PollID+"/"+vote.UserID)
		}
		return fmt.Errorf("sqlite: creating vote on poll %s: %w", vote.PollID, err)
	}
	return nil
}

func (t *tx) UpdateVoteOption(ctx context.Context, pollID, userID string, option int, votedAt time.Time) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE votes SET selected_option = ?, voted_at = ? WHERE poll_id = ? AND user_id = ?`,
		option, votedAt, pollID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating vote on poll %s: %w", pollID, err)
	}
	return expectOne(res, "vote", pollID+"/"+userID)
}

func (t *tx) DeleteVote(ctx context.Context, pollID, userID string) error {
	res, err := t.q.ExecContext(ctx,
		`DELETE FROM votes WHERE poll_id = ? AND user_id = ?`, pollID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting vote on poll %s: %w", pollID, err)
	}
	return expectOne(res, "vote", pollID+"/"+userID)
}

func (t *tx) ListVotesByUser(ctx context.Context, userID string) ([]model.Vote, error) {
	return t.listVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE user_id = ? ORDER BY voted_at DESC, id DESC`, userID)
}

func (t *tx) ListVotesByPoll(ctx context.Context, pollID string) ([]model.Vote, error) {
	return t.listVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE poll_id = ? ORDER BY voted_at DESC, id DESC`, pollID)
}

func (t *tx) listVotes(ctx context.Context, query string, arg string) ([]model.Vote, error) {
	rows, err := t.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote row: %w", err)
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating votes: %w", err)
	}
	return votes, nil
}

// CountVotes counts active votes on a poll.
func (t *tx) CountVotes(ctx context.Context, pollID string) (int, error) {
	var n int
	if err := t.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE poll_id = ?`, pollID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting votes on poll %s: %w", pollID, err)
	}
	return n, nil
}

func (t *tx) DeleteVotesByPoll(ctx context.Context, pollID string) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM votes WHERE poll_id = ?`, pollID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting votes of poll %s: %w", pollID, err)
	}
	return res.RowsAffected()
}

// MarkVoted is INSERT OR IGNORE: the first cast wins and later casts keep
// the original first_voted_at.
func (t *tx) MarkVoted(ctx context.Context, pollID, userID string) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO vote_markers (poll_id, user_id, first_voted_at) VALUES (?, ?, ?)`,
		pollID, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: marking poll %s as voted: %w", pollID, err)
	}
	return nil
}

func (t *tx) VotedPollIDs(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := t.q.QueryContext(ctx, `SELECT poll_id FROM vote_markers WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing vote markers: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning vote marker: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating vote markers: %w", err)
	}
	return ids, nil
}

func (t *tx) HasVoted(ctx context.Context, pollID, userID string) (bool, error) {
	var one int
	err := t.q.QueryRowContext(ctx,
		`SELECT 1 FROM vote_markers WHERE poll_id = ? AND user_id = ?`,
		pollID, userID,
	).Scan(&one)
	if err != nil {
		if noRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: checking vote marker on poll %s: %w", pollID, err)
	}
	return true, nil
}

func (t *tx) DeleteMarkersByPoll(ctx context.Context, pollID string) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM vote_markers WHERE poll_id = ?`, pollID); err != nil {
		return fmt.Errorf("sqlite: deleting vote markers of poll %s: %w", pollID, err)
	}
	return nil
}

func (t *tx) DeleteMarkersByUser(ctx context.Context, userID string) error {
	if _, err := t.q.ExecContext(ctx, `DELETE FROM vote_markers WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting vote markers of user %s: %w", userID, err)
	}
	return nil
}
