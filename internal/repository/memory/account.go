// Package memory holds in-process repositories for local runs and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository"
)

type accountRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*model.Account
	byEmail map[string]uuid.UUID
}

func NewAccountRepository() repository.AccountRepository {
	return &accountRepository{
		byID:    make(map[uuid.UUID]*model.Account),
		byEmail: make(map[string]uuid.UUID),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *accountRepository) Create(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := emailKey(account.Email)
	if _, ok := r.byEmail[key]; ok {
		return repository.ErrDuplicate
	}
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	r.byID[account.ID] = &stored
	r.byEmail[key] = account.ID
	return nil
}

func (r *accountRepository) Get(_ context.Context, id uuid.UUID) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[emailKey(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *accountRepository) Update(_ context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	newKey := emailKey(account.Email)
	if oldKey := emailKey(current.Email); oldKey != newKey {
		if _, taken := r.byEmail[newKey]; taken {
			return repository.ErrDuplicate
		}
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = account.ID
	}
	account.UpdatedAt = time.Now().UTC()
	stored := *account
	r.byID[account.ID] = &stored
	return nil
}

func (r *accountRepository) Ping(context.Context) error {
	return nil
}
