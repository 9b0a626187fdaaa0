package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/tapcard/internal/apperror"
	"github.com/sakif/tapcard/internal/auth"
	"github.com/sakif/tapcard/internal/model"
)

func newTestAccounts(t *testing.T, env *testEnv) (*AccountService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	return NewAccountService(env.store, ts, newTestLogger()), ts
}

// =========================================================================
// Register TESTS
// =========================================================================

func TestRegister_IssuesWorkingToken(t *testing.T) {
	env := newTestEnv(t)
	accounts, ts := newTestAccounts(t, env)

	res, err := accounts.Register(context.Background(), NewAccount{Email: "  Ada@Example.com ", Name: "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", res.User.Email)
	assert.Equal(t, model.RoleUser, res.User.Role)

	id, err := ts.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, id.UserID)
	assert.Equal(t, model.RoleUser, id.Role)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	accounts, _ := newTestAccounts(t, env)
	ctx := context.Background()

	_, err := accounts.Register(ctx, NewAccount{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = accounts.Register(ctx, NewAccount{Email: "DUP@example.com"})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	accounts, _ := newTestAccounts(t, env)

	tests := []struct {
		name  string
		in    NewAccount
		field string
	}{
		{"missing email", NewAccount{}, "email"},
		{"bad email", NewAccount{Email: "not-an-email"}, "email"},
		{"display-name email", NewAccount{Email: "Ada <ada@example.com>"}, "email"},
		{"unknown role", NewAccount{Email: "x@example.com", Role: "root"}, "role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.Register(context.Background(), tt.in)
			var appErr *apperror.AppError
			require.True(t, errors.As(err, &appErr), "got %v", err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

// =========================================================================
// EnsureAccount / Me TESTS
// =========================================================================

func TestEnsureAccount_ReusesExistingUser(t *testing.T) {
	env := newTestEnv(t)
	accounts, ts := newTestAccounts(t, env)
	ctx := context.Background()

	// env already holds admin@example.com; asking for a plain user keeps the admin role
	res, err := accounts.EnsureAccount(ctx, NewAccount{Email: "admin@example.com", Role: model.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, env.admin.ID, res.User.ID)

	id, err := ts.Validate(res.Token)
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())

	fresh, err := accounts.EnsureAccount(ctx, NewAccount{Email: "new@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, env.admin.ID, fresh.User.ID)
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	accounts, _ := newTestAccounts(t, env)

	u, err := accounts.Me(context.Background(), env.admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)

	_, err = accounts.Me(context.Background(), 9999)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}
