// Package cli is the medinotes terminal client.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jwalitptl/medinotes/internal/consultation"
	"github.com/jwalitptl/medinotes/internal/credential"
	"github.com/jwalitptl/medinotes/internal/identity"
	"github.com/jwalitptl/medinotes/internal/model"
	"github.com/jwalitptl/medinotes/internal/stream"
	"github.com/jwalitptl/medinotes/pkg/logger"
)

const envPrefix = "MEDINOTES"

// Config is read from MEDINOTES_* variables; flags override it.
type Config struct {
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:8080"`
	Email     string `envconfig:"EMAIL"`
	Password  string `envconfig:"PASSWORD"`

	// Store is where the cached credential lives: file, redis or memory.
	Store     string `envconfig:"CREDENTIAL_STORE" default:"file"`
	StorePath string `envconfig:"CREDENTIAL_PATH"`
	RedisURL  string `envconfig:"CREDENTIAL_REDIS_URL"`
	Profile   string `envconfig:"PROFILE" default:"default"`

	Plan     string        `envconfig:"PLAN" default:"premium_subscription"`
	Window   time.Duration `envconfig:"CREDENTIAL_WINDOW" default:"2h"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"warn"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// session is everything one command needs to talk to the server.
type session struct {
	cfg      Config
	log      *logger.Logger
	client   *identity.Client
	store    credential.Store
	resolver *credential.Resolver
	close    func() error
}

func openSession(ctx context.Context, cfg Config, log *logger.Logger) (*session, error) {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := identity.NewClient(cfg.ServerURL, cfg.Email, cfg.Password, identity.WithClientLogger(log))
	resolver := credential.NewResolver(store, client,
		credential.WithWindow(cfg.Window),
		credential.WithLogger(log))
	return &session{
		cfg:      cfg,
		log:      log,
		client:   client,
		store:    store,
		resolver: resolver,
		close:    closeStore,
	}, nil
}

func openStore(ctx context.Context, cfg Config) (credential.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case "memory":
		return credential.NewMemoryStore(), noop, nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("credential store redis needs MEDINOTES_CREDENTIAL_REDIS_URL or --redis-url")
		}
		s, err := credential.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.Profile)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "file", "":
		path := cfg.StorePath
		if path == "" {
			p, err := credential.DefaultFilePath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		return credential.NewFileStore(path), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", cfg.Store)
	}
}

// form wires a consultation form to this session.
func (s *session) form(opts ...consultation.Option) *consultation.Form {
	streamer := consultation.NewStreamer(stream.NewClient(s.cfg.ServerURL, stream.WithLogger(s.log)))
	opts = append([]consultation.Option{consultation.WithLogger(s.log)}, opts...)
	return consultation.NewForm(s.resolver, streamer, opts...)
}

// gate asks the server whether the signed-in account holds the plan.
func (s *session) gate() *consultation.Gate {
	return consultation.NewGate(s.client.PlanChecker(s.resolver), s.cfg.Plan, s.log)
}

func (s *session) profile(ctx context.Context) (*model.Profile, error) {
	token, err := s.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Me(ctx, token)
}
