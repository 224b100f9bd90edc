package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

const userColumns = `id, username, email, password_hash, city, mode, role, created_at, updated_at`

func scanUser(s scanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.City, &u.Mode, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a new account. Duplicate usernames or emails come back
// as apperror.ErrConflict.
func (t *tx) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Mode == "" {
		user.Mode = model.ModeLocal
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := t.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.PasswordHash, user.City,
		user.Mode, user.Role, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username or email", user.Username)
		}
		return fmt.Errorf("sqlite: creating user %q: %w", user.Username, err)
	}
	return nil
}

func (t *tx) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return t.getUser(ctx, "id", id)
}

func (t *tx) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return t.getUser(ctx, "email", email)
}

func (t *tx) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return t.getUser(ctx, "username", username)
}

// getUser looks up by one unique column. column is always a literal from the
// callers above.
func (t *tx) getUser(ctx context.Context, column, value string) (*model.User, error) {
	u, err := scanUser(t.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	))
	if err != nil {
		if noRows(err) {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user by %s: %w", column, err)
	}
	return &u, nil
}

// UpdateUser saves profile fields. A username change is copied onto the
// user's comments, which store the author name.
func (t *tx) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := t.q.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, password_hash = ?, city = ?, mode = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username, user.Email, user.PasswordHash, user.City, user.Mode, user.UpdatedAt, user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("username or email", user.Username)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if err := expectOne(res, "user", user.ID); err != nil {
		return err
	}

	if _, err := t.q.ExecContext(ctx,
		`UPDATE comments SET username = ? WHERE user_id = ?`, user.Username, user.ID,
	); err != nil {
		return fmt.Errorf("sqlite: renaming comment author %s: %w", user.ID, err)
	}
	return nil
}

func (t *tx) DeleteUser(ctx context.Context, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return expectOne(res, "user", id)
}
