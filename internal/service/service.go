// Package service holds the business rules of the polls domain. Handlers call
// services; services call the repository through a Store.
//
//	Handler (HTTP) → Service (rules, locking) → repository.Store (SQLite)
//
// TRANSACTIONS:
// Every mutation runs inside exactly one Store.Update, so a failed or
// cancelled operation leaves nothing behind. Every read that combines tallies
// with vote records runs inside one Store.View. Services never nest Update or
// View calls: the in-memory store has a single connection.
//
// LOCKING:
// Writes that touch one poll (vote, edit, delete, comment) first take that
// poll's PollLocks entry, then open the write transaction.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/repository"
)

// lockedUpdate runs fn in a write transaction while holding pollID's lock.
func lockedUpdate(ctx context.Context, locks *PollLocks, store repository.Store, pollID string, fn func(tx repository.Tx) error) error {
	release, err := locks.Acquire(ctx, pollID)
	if err != nil {
		return err
	}
	defer release()
	return store.Update(ctx, fn)
}

// logUnexpected logs err unless it is an expected outcome (validation,
// missing rows, permission, duplicates) that the caller reports to the client.
func logUnexpected(logger *slog.Logger, msg string, err error, attrs ...any) {
	for _, expected := range []error{
		apperror.ErrValidation,
		apperror.ErrNotFound,
		apperror.ErrForbidden,
		apperror.ErrConflict,
		apperror.ErrUnauthorized,
	} {
		if errors.Is(err, expected) {
			return
		}
	}
	logger.Error(msg, append(attrs, slog.String("error", err.Error()))...)
}
