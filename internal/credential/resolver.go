package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
)

// DefaultWindow is the local lifetime given to a freshly issued token,
// regardless of the lifetime the issuer embedded in it.
const DefaultWindow = 2 * time.Hour

var (
	ErrAuthRequired   = errors.New("authentication required")
	ErrSessionExpired = errors.New("session expired")
)

// Messages shown in place of a summary when resolution aborts a submission.
const (
	MsgAuthRequired   = "Authentication required"
	MsgSessionExpired = "Session expired. Please sign in again."
)

// UserMessage maps a resolution error to the text shown to the user. It
// returns "" for errors that carry no user facing message.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return MsgSessionExpired
	case errors.Is(err, ErrAuthRequired):
		return MsgAuthRequired
	default:
		return ""
	}
}

// Authenticator is the identity provider: it issues bearer tokens for the
// signed-in user and ends the session.
type Authenticator interface {
	Token(ctx context.Context) (string, error)
	SignOut(ctx context.Context) error
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(r *Resolver) { r.window = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l.With("credential") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver produces a bearer credential for a submission or refuses it.
type Resolver struct {
	store   Store
	auth    Authenticator
	now     func() time.Time
	window  time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
	group   singleflight.Group
}

func NewResolver(store Store, auth Authenticator, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		auth:   auth,
		now:    time.Now,
		window: DefaultWindow,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cached returns the stored credential without judging it. ok is false when
// either entry is missing or the expiry cannot be read.
func (r *Resolver) Cached(ctx context.Context) (model.Credential, bool, error) {
	token, ok, err := r.store.Get(ctx, TokenKey)
	if err != nil || !ok || token == "" {
		return model.Credential{}, false, err
	}
	raw, ok, err := r.store.Get(ctx, ExpiryKey)
	if err != nil || !ok {
		return model.Credential{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.log.Warn("discarding unreadable credential expiry", "value", raw)
		return model.Credential{}, false, r.store.Clear(ctx, TokenKey, ExpiryKey)
	}
	return model.Credential{Token: token, Expiry: time.UnixMilli(ms)}, true, nil
}

// Resolve returns a token that is valid right now. A cached token past its
// expiry is purged and the session ended; no token is issued in its place.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	cred, found, err := r.Cached(ctx)
	if err != nil {
		r.record("failed")
		return "", fmt.Errorf("read cached credential: %w", err)
	}

	if found {
		if cred.Valid(r.now()) {
			r.record("hit")
			return cred.Token, nil
		}
		r.record("expired")
		return "", r.expire(ctx)
	}

	v, err, _ := r.group.Do("issue", func() (interface{}, error) {
		// A concurrent caller may have finished issuing since the read above.
		if cred, found, err := r.Cached(ctx); err == nil && found && cred.Valid(r.now()) {
			return cred, nil
		}
		return r.issue(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(model.Credential).Token, nil
}

func (r *Resolver) issue(ctx context.Context) (model.Credential, error) {
	issuedAt := r.now()
	token, err := r.auth.Token(ctx)
	if err != nil || token == "" {
		r.record("failed")
		if err == nil {
			err = errors.New("identity provider returned no token")
		}
		r.log.Warn("token issuance failed", "error", err.Error())
		return model.Credential{}, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	cred := model.Credential{Token: token, Expiry: issuedAt.Add(r.window)}
	if err := r.store.Set(ctx, TokenKey, cred.Token); err != nil {
		return model.Credential{}, fmt.Errorf("cache token: %w", err)
	}
	if err := r.store.Set(ctx, ExpiryKey, strconv.FormatInt(cred.Expiry.UnixMilli(), 10)); err != nil {
		return model.Credential{}, fmt.Errorf("cache token expiry: %w", err)
	}
	r.record("issued")
	r.warnOnShorterLifetime(cred)

	if !cred.Valid(r.now()) {
		r.record("expired")
		return model.Credential{}, r.expire(ctx)
	}
	return cred, nil
}

// Invalidate purges the cached credential and signs the user out.
func (r *Resolver) Invalidate(ctx context.Context) error {
	clearErr := r.store.Clear(ctx, TokenKey, ExpiryKey)
	return errors.Join(clearErr, r.auth.SignOut(ctx))
}

// expire always returns ErrSessionExpired; cleanup failures are logged.
func (r *Resolver) expire(ctx context.Context) error {
	if err := r.store.Clear(ctx, TokenKey, ExpiryKey); err != nil {
		r.log.Error(err, "failed to purge expired credential")
	}
	if err := r.auth.SignOut(ctx); err != nil {
		r.log.Error(err, "sign-out after expiry failed")
	}
	return ErrSessionExpired
}

// The local window is not reconciled with the token's own exp claim; an
// earlier exp only produces a warning.
func (r *Resolver) warnOnShorterLifetime(cred model.Credential) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(cred.Token, claims); err != nil || claims.ExpiresAt == nil {
		return
	}
	if claims.ExpiresAt.Time.Before(cred.Expiry) {
		r.log.Warn("issued token expires before the local cache window",
			"token_exp", claims.ExpiresAt.Time.Format(time.RFC3339),
			"cache_exp", cred.Expiry.Format(time.RFC3339))
	}
}

func (r *Resolver) record(result string) {
	if r.metrics != nil {
		r.metrics.CredentialLookups.WithLabelValues(result).Inc()
	}
}
