package sqlite

import (
	"context"
	"fmt"

	"github.com/sakif/citypolls/internal/model"
)

func (t *tx) IncrementTag(ctx context.Context, city, name string) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO tags (city, name, usage_count) VALUES (?, ?, 1)
		 ON CONFLICT (city, name) DO UPDATE SET usage_count = usage_count + 1`,
		city, name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing tag %q in %s: %w", name, city, err)
	}
	return nil
}

// DecrementTag lowers the count, deleting the row instead of letting it hit
// zero. Decrementing an absent tag is a no-op.
func (t *tx) DecrementTag(ctx context.Context, city, name string) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE tags SET usage_count = usage_count - 1
		 WHERE city = ? AND name = ? AND usage_count > 1`,
		city, name,
	)
	if err != nil {
		return fmt.Errorf("sqlite: decrementing tag %q in %s: %w", name, city, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := t.q.ExecContext(ctx,
		`DELETE FROM tags WHERE city = ? AND name = ?`, city, name,
	); err != nil {
		return fmt.Errorf("sqlite: removing tag %q in %s: %w", name, city, err)
	}
	return nil
}

func (t *tx) PopularTags(ctx context.Context, city string, limit int) ([]model.Tag, error) {
	rows, err := t.q.QueryContext(ctx,
		`SELECT name, city, usage_count FROM tags
		 WHERE city = ?
		 ORDER BY usage_count DESC, name ASC
		 LIMIT ?`,
		city, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing popular tags in %s: %w", city, err)
	}
	defer rows.Close()

	tags := make([]model.Tag, 0, limit)
	for rows.Next() {
		var tag model.Tag
		if err := rows.Scan(&tag.Name, &tag.City, &tag.UsageCount); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tags: %w", err)
	}
	return tags, nil
}
