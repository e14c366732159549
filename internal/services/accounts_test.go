package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/leadhub/crm/internal/models"
)

func TestRegister(t *testing.T) {
	accounts := NewAccounts(openTestDB(t), DefaultWelcomeBalance, nil)
	ctx := context.Background()

	acc, err := accounts.Register(ctx, "manager_1", "secret123")
	require.NoError(t, err)
	assert.EqualValues(t, 100, acc.Balance)
	assert.Equal(t, models.RoleManager, acc.Role)
	assert.NotEqual(t, "secret123", acc.PasswordHash)

	_, err = accounts.Register(ctx, "manager_1", "another123")
	assert.True(t, IsConflict(err), "got %v", err)
}

func TestRegister_Policies(t *testing.T) {
	accounts := NewAccounts(openTestDB(t), DefaultWelcomeBalance, nil)
	ctx := context.Background()

	cases := []struct {
		name, username, password string
	}{
		{"short username", "ab", "secret123"},
		{"bad characters", "john.doe", "secret123"},
		{"short password", "johndoe", "abc12"},
		{"no digit", "johndoe", "abcdefghij"},
		{"no letter", "johndoe", "1234567890"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounts.Register(ctx, tc.username, tc.password)
			assert.True(t, IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestRegister_CustomPolicy(t *testing.T) {
	deny := errors.New("denied")
	accounts := NewAccounts(openTestDB(t), 5, func(string) error { return deny })

	_, err := accounts.Register(context.Background(), "someone", "secret123")
	assert.ErrorIs(t, err, deny)
}

func TestAuthenticate(t *testing.T) {
	accounts := NewAccounts(openTestDB(t), DefaultWelcomeBalance, nil)
	ctx := context.Background()

	reg, err := accounts.Register(ctx, "tess", "password1")
	require.NoError(t, err)

	acc, err := accounts.Authenticate(ctx, "tess", "password1")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, acc.ID)

	_, err = accounts.Authenticate(ctx, "tess", "password2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accounts.Authenticate(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureAdmin(t *testing.T) {
	gdb := openTestDB(t)
	accounts := NewAccounts(gdb, DefaultWelcomeBalance, nil)
	ctx := context.Background()

	first, err := accounts.EnsureAdmin(ctx, "admin", "s3cret", 10000)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, first.Role)
	assert.EqualValues(t, 10000, first.Balance)

	// idempotent; balance is not reset on later runs
	require.NoError(t, gdb.Model(&models.Account{}).Where("id = ?", first.ID).Update("balance", 7).Error)
	again, err := accounts.EnsureAdmin(ctx, "admin", "s3cret", 10000)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.EqualValues(t, 7, again.Balance)

	// drifted password and role are corrected
	require.NoError(t, gdb.Model(&models.Account{}).Where("id = ?", first.ID).Update("role", models.RoleManager).Error)
	fixed, err := accounts.EnsureAdmin(ctx, "admin", "n3w-secret", 10000)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, fixed.Role)

	stored, err := accounts.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("n3w-secret")))
}

func TestTelegramLinking(t *testing.T) {
	accounts := NewAccounts(openTestDB(t), DefaultWelcomeBalance, nil)
	ctx := context.Background()

	alice, err := accounts.Register(ctx, "alice", "password1")
	require.NoError(t, err)
	bob, err := accounts.Register(ctx, "bob_b", "password1")
	require.NoError(t, err)

	token, err := accounts.IssueConnectToken(ctx, alice.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	linked, err := accounts.LinkTelegram(ctx, token, "555")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, linked.ID)

	byChat, err := accounts.ByChatID(ctx, "555")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byChat.ID)

	// tokens are single use
	_, err = accounts.LinkTelegram(ctx, token, "555")
	assert.True(t, IsNotFound(err))

	// a chat belongs to one account
	bobToken, err := accounts.IssueConnectToken(ctx, bob.ID)
	require.NoError(t, err)
	_, err = accounts.LinkTelegram(ctx, bobToken, "555")
	assert.True(t, IsConflict(err), "got %v", err)

	require.NoError(t, accounts.UnlinkTelegram(ctx, alice.ID))
	_, err = accounts.ByChatID(ctx, "555")
	assert.True(t, IsNotFound(err))

	_, err = accounts.LinkTelegram(ctx, bobToken, "555")
	require.NoError(t, err)

	_, err = accounts.IssueConnectToken(ctx, 999)
	assert.True(t, IsNotFound(err))
}
