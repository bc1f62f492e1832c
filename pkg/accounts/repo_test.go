package accounts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tokenlease/pkg/testhelpers"
	"tokenlease/pkg/tokens"
)

func TestPostgresAccountRepository_CRUD(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	repo := NewPostgresAccountRepository(pool)
	ctx := context.Background()

	addr := tokens.Address(uuid.NewString())
	email := fmt.Sprintf("repo-%d@example.com", time.Now().UnixNano())

	created, err := repo.CreateAccount(ctx, Account{Address: addr, Name: "Repo", Email: email, IsAdmin: true}, "hash")
	require.NoError(t, err)
	require.Positive(t, created.ID)
	require.Equal(t, addr, created.Address)
	require.True(t, created.IsAdmin)
	require.False(t, created.CreatedAt.IsZero())

	byAddr, err := repo.GetAccountByAddress(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, created.ID, byAddr.ID)

	byEmail, hash, err := repo.GetAccountAuthByEmail(ctx, email)
	require.NoError(t, err)
	require.Equal(t, addr, byEmail.Address)
	require.Equal(t, "hash", hash)

	_, err = repo.CreateAccount(ctx, Account{Address: tokens.Address(uuid.NewString()), Name: "Dup", Email: email}, "hash")
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = repo.GetAccountByEmail(ctx, "missing-"+email)
	require.ErrorIs(t, err, ErrAccountNotFound)
}
