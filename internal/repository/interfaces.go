package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medinotes/internal/model"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type (
	// AccountRepository stores identity accounts. Emails are matched case
	// insensitively.
	AccountRepository interface {
		Create(ctx context.Context, account *model.Account) error
		Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
		GetByEmail(ctx context.Context, email string) (*model.Account, error)
		Update(ctx context.Context, account *model.Account) error
		Ping(ctx context.Context) error
	}

	// TokenRepository records revoked token ids until the token would have
	// expired anyway.
	TokenRepository interface {
		Revoke(ctx context.Context, jti string, expiresAt time.Time) error
		IsRevoked(ctx context.Context, jti string) (bool, error)
		// DeleteExpired drops revocations whose token expired before cutoff.
		DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	}
)
