package sqlite

import "fmt"

// migrate creates the schema. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so it runs on each start.
//
// Cascades: options and tag links belong to their poll and go with it
// (ON DELETE CASCADE). Votes, has-voted markers, and comments only reference a
// poll, with no cascade: the poll service deletes them explicitly in the same
// transaction as the poll, and the foreign keys reject a poll delete that
// forgot one of them.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				city          TEXT NOT NULL,
				mode          TEXT NOT NULL DEFAULT 'LOCAL',
				role          TEXT NOT NULL DEFAULT 'USER',
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);
		`},
		{"polls", `
			CREATE TABLE IF NOT EXISTS polls (
				id            TEXT PRIMARY KEY,
				question      TEXT NOT NULL,
				city          TEXT NOT NULL,
				created_by    TEXT NOT NULL REFERENCES users(id),
				comment_count INTEGER NOT NULL DEFAULT 0 CHECK (comment_count >= 0),
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_polls_city ON polls(city);
			CREATE INDEX IF NOT EXISTS idx_polls_created_by ON polls(created_by);
		`},
		{"poll_options", `
			CREATE TABLE IF NOT EXISTS poll_options (
				poll_id    TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
				position   INTEGER NOT NULL CHECK (position BETWEEN 1 AND 4),
				text       TEXT NOT NULL,
				vote_count INTEGER NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
				PRIMARY KEY (poll_id, position)
			);
		`},
		{"poll_tags", `
			CREATE TABLE IF NOT EXISTS poll_tags (
				poll_id TEXT NOT NULL REFERENCES polls(id) ON DELETE CASCADE,
				tag     TEXT NOT NULL,
				PRIMARY KEY (poll_id, tag)
			);
		`},
		{"tags", `
			CREATE TABLE IF NOT EXISTS tags (
				city        TEXT NOT NULL,
				name        TEXT NOT NULL,
				usage_count INTEGER NOT NULL CHECK (usage_count > 0),
				PRIMARY KEY (city, name)
			);
		`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				id              TEXT PRIMARY KEY,
				poll_id         TEXT NOT NULL REFERENCES polls(id),
				user_id         TEXT NOT NULL REFERENCES users(id),
				selected_option INTEGER NOT NULL CHECK (selected_option >= 1),
				voted_at        DATETIME NOT NULL,
				UNIQUE (poll_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_votes_user_id ON votes(user_id);
		`},
		{"vote_markers", `
			CREATE TABLE IF NOT EXISTS vote_markers (
				poll_id        TEXT NOT NULL REFERENCES polls(id),
				user_id        TEXT NOT NULL REFERENCES users(id),
				first_voted_at DATETIME NOT NULL,
				PRIMARY KEY (poll_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_vote_markers_user_id ON vote_markers(user_id);
		`},
		{"comments", `
			CREATE TABLE IF NOT EXISTS comments (
				id         TEXT PRIMARY KEY,
				poll_id    TEXT NOT NULL REFERENCES polls(id),
				user_id    TEXT NOT NULL REFERENCES users(id),
				username   TEXT NOT NULL,
				content    TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_comments_poll_id ON comments(poll_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_comments_user_id ON comments(user_id);
		`},
	}

	for _, step := range steps {
		if _, err := db.writer.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", step.name, err)
		}
	}
	return nil
}
