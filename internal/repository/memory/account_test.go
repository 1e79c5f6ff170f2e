package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository"
)

func TestAccountRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	account := &model.Account{Name: "Dr Demo", Email: "Demo@Example.com", Plan: model.PlanFree}
	require.NoError(t, repo.Create(ctx, account))
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.False(t, account.CreatedAt.IsZero())

	got, err := repo.GetByEmail(ctx, "demo@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	err = repo.Create(ctx, &model.Account{Email: "DEMO@example.com"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	got.Plan = model.PlanPremium
	require.NoError(t, repo.Update(ctx, got))

	again, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPremium, again.Plan)

	// Returned values are copies.
	again.Plan = model.PlanFree
	fresh, err := repo.Get(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPremium, fresh.Plan)
}

func TestAccountRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewAccountRepository()

	_, err := repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &model.Account{ID: uuid.New()}), repository.ErrNotFound)
}
