package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

const commentColumns = `id, poll_id, user_id, username, content, created_at`

func scanComment(s scanner) (model.Comment, error) {
	var c model.Comment
	err := s.Scan(&c.ID, &c.PollID, &c.UserID, &c.Username, &c.Content, &c.CreatedAt)
	return c, err
}

func (t *tx) CreateComment(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now().UTC()

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		comment.ID, comment.PollID, comment.UserID, comment.Username, comment.Content, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment on poll %s: %w", comment.PollID, err)
	}
	return nil
}

func (t *tx) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	c, err := scanComment(t.q.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id,
	))
	if err != nil {
		if noRows(err) {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListComments returns newest first; id breaks ties between comments created
// in the same instant.
func (t *tx) ListComments(ctx context.Context, pollID string) ([]model.Comment, error) {
	return t.listComments(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE poll_id = ? ORDER BY created_at DESC, id DESC`, pollID)
}

func (t *tx) ListCommentsByUser(ctx context.Context, userID string) ([]model.Comment, error) {
	return t.listComments(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
}

func (t *tx) listComments(ctx context.Context, query, arg string) ([]model.Comment, error) {
	rows, err := t.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

func (t *tx) DeleteComment(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	return expectOne(res, "comment", id)
}

func (t *tx) DeleteCommentsByPoll(ctx context.Context, pollID string) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM comments WHERE poll_id = ?`, pollID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting comments of poll %s: %w", pollID, err)
	}
	return res.RowsAffected()
}
