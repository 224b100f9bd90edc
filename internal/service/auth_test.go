package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/model"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u, err := env.auth.Register(ctx, RegisterInput{
		Username: " alice ",
		Email:    "Alice@Example.COM",
		Password: "password123",
		City:     " Dhaka ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Dhaka", u.City)
	assert.Equal(t, model.ModeLocal, u.Mode)
	assert.NotEqual(t, "password123", u.PasswordHash)

	tests := []struct {
		name  string
		in    RegisterInput
		want  error
		field string
	}{
		{"duplicate username", RegisterInput{"alice", "other@example.com", "password123", "Dhaka"}, apperror.ErrConflict, ""},
		{"duplicate email", RegisterInput{"alice2", "ALICE@example.com", "password123", "Dhaka"}, apperror.ErrConflict, ""},
		{"bad email", RegisterInput{"carol", "not-an-email", "password123", "Dhaka"}, apperror.ErrValidation, "email"},
		{"short password", RegisterInput{"carol", "carol@example.com", "12345", "Dhaka"}, apperror.ErrValidation, "password"},
		{"no city", RegisterInput{"carol", "carol@example.com", "password123", ""}, apperror.ErrValidation, "city"},
		{"slash in username", RegisterInput{"ca/rol", "carol@example.com", "password123", "Dhaka"}, apperror.ErrValidation, "username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
			if tt.field != "" {
				var appErr *apperror.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, tt.field, appErr.Field)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice", "Dhaka")

	res, err := env.auth.Login(ctx, " ALICE@example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.User.ID)

	subject, err := env.tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, subject)

	_, err = env.auth.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	_, err = env.auth.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized, "unknown email looks like a bad password")
}
