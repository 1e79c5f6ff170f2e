// Package identity is the identity and billing collaborator: accounts,
// sign-in, bearer token issuance and revocation, and plan subscriptions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/repository"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
	"github.com/jwalitptl/medinotes/pkg/security"
)

const (
	maxLoginAttempts = 5
	lockoutDuration  = 15 * time.Minute
	TokenType        = "Bearer"
)

var ErrUnknownPlan = errors.New("unknown plan")

type Service struct {
	accounts    repository.AccountRepository
	hasher      security.PasswordHasher
	tokens      *JWTManager
	revocations Revocations
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l.With("identity") }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.tokens.now = now
	}
}

func NewService(accounts repository.AccountRepository, hasher security.PasswordHasher,
	tokens *JWTManager, revocations Revocations, opts ...Option) *Service {
	s := &Service{
		accounts:    accounts,
		hasher:      hasher,
		tokens:      tokens,
		revocations: revocations,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, req *model.RegisterRequest) (*model.Account, error) {
	return s.createAccount(ctx, req.Name, req.Email, req.Password, model.PlanFree)
}

// SeedAccount creates the account unless the email is already registered.
func (s *Service) SeedAccount(ctx context.Context, name, email, password, plan string) (*model.Account, error) {
	if existing, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return existing, nil
	}
	return s.createAccount(ctx, name, email, password, plan)
}

func (s *Service) createAccount(ctx context.Context, name, email, password, plan string) (*model.Account, error) {
	if !knownPlan(plan) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(name),
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		Status:       string(model.AccountStatusActive),
		Plan:         plan,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.log.Info("account registered", "account_id", account.ID.String(), "plan", plan)
	return account, nil
}

// Login checks the password and issues a token. Five consecutive failures
// lock the account for fifteen minutes.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.loginFailed()
			return nil, model.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := s.now()
	if account.Locked(now) {
		return nil, model.ErrAccountLocked
	}
	if account.LockedUntil != nil {
		account.LockedUntil = nil
		account.LoginAttempts = 0
		account.Status = string(model.AccountStatusActive)
	}

	if err := s.hasher.Compare(account.PasswordHash, password); err != nil {
		s.loginFailed()
		account.LoginAttempts++
		if account.LoginAttempts >= maxLoginAttempts {
			until := now.Add(lockoutDuration)
			account.LockedUntil = &until
			account.Status = string(model.AccountStatusLocked)
			s.log.Warn("account locked after repeated failures", "account_id", account.ID.String())
		}
		if err := s.accounts.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to update login attempts: %w", err)
		}
		return nil, model.ErrInvalidCredentials
	}

	if account.LoginAttempts != 0 {
		account.LoginAttempts = 0
		if err := s.accounts.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to reset login attempts: %w", err)
		}
	}

	return s.IssueToken(ctx, account)
}

func (s *Service) IssueToken(_ context.Context, account *model.Account) (*model.TokenResponse, error) {
	token, claims, err := s.tokens.Issue(account)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TokensIssued.Inc()
	}
	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   TokenType,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// ValidateToken verifies the token and rejects revoked ones.
func (s *Service) ValidateToken(ctx context.Context, token string) (*model.TokenClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, model.ErrTokenRevoked
	}
	return claims, nil
}

// Revoke ends the token's session. Tokens that no longer validate need no
// revocation.
func (s *Service) Revoke(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	if s.metrics != nil {
		s.metrics.TokensRevoked.Inc()
	}
	return nil
}

func (s *Service) Account(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	return s.accounts.Get(ctx, id)
}

// AccountFromClaims loads the account a validated token was issued for.
func (s *Service) AccountFromClaims(ctx context.Context, claims *model.TokenClaims) (*model.Account, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return s.accounts.Get(ctx, id)
}

// Subscribe moves the account onto plan.
func (s *Service) Subscribe(ctx context.Context, id uuid.UUID, plan string) (*model.Account, error) {
	if !knownPlan(plan) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlan, plan)
	}
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Plan == plan {
		return account, nil
	}
	account.Plan = plan
	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	s.log.Info("plan changed", "account_id", account.ID.String(), "plan", plan)
	return account, nil
}

// HasPlan reports whether the account holds plan.
func (s *Service) HasPlan(ctx context.Context, id uuid.UUID, plan string) (bool, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return account.HasPlan(plan), nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.accounts.Ping(ctx)
}

func (s *Service) loginFailed() {
	if s.metrics != nil {
		s.metrics.LoginFailures.Inc()
	}
}

func knownPlan(plan string) bool {
	return plan == model.PlanFree || plan == model.PlanPremium
}

// AccountPlan binds an account to the plan gate.
type AccountPlan struct {
	svc *Service
	id  uuid.UUID
}

func (s *Service) PlanFor(id uuid.UUID) AccountPlan {
	return AccountPlan{svc: s, id: id}
}

func (a AccountPlan) HasPlan(ctx context.Context, plan string) (bool, error) {
	return a.svc.HasPlan(ctx, a.id, plan)
}
