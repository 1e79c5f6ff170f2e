package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/medinotes/pkg/logger"
)

type app struct {
	cfg Config
	log *logger.Logger
}

// NewRootCommand builds the medinotes command tree. Environment is read
// once here; flags win over it.
func NewRootCommand() *cobra.Command {
	a := &app{}
	var loadErr error
	a.cfg, loadErr = LoadConfig()

	root := &cobra.Command{
		Use:           "medinotes",
		Short:         "Consultation summaries from the terminal",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if loadErr != nil {
				return loadErr
			}
			a.log = logger.NewLogger(&logger.Config{
				Level:      logger.ParseLevel(a.cfg.LogLevel),
				TimeFormat: time.Kitchen,
				Output:     cmd.ErrOrStderr(),
				Pretty:     true,
			})
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.ServerURL, "server", a.cfg.ServerURL, "MediNotes server URL")
	flags.StringVar(&a.cfg.Email, "email", a.cfg.Email, "account email")
	flags.StringVar(&a.cfg.Password, "password", a.cfg.Password, "account password (prefer MEDINOTES_PASSWORD)")
	flags.StringVar(&a.cfg.Store, "store", a.cfg.Store, "credential store: file, redis or memory")
	flags.StringVar(&a.cfg.StorePath, "store-path", a.cfg.StorePath, "credential file for the file store")
	flags.StringVar(&a.cfg.RedisURL, "redis-url", a.cfg.RedisURL, "Redis URL for the redis store")
	flags.StringVar(&a.cfg.Profile, "profile", a.cfg.Profile, "credential profile for the redis store")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "debug, info, warn or error")

	root.AddCommand(
		newSubmitCommand(a),
		newSignInCommand(a),
		newSignOutCommand(a),
		newStatusCommand(a),
	)
	return root
}

func (a *app) session(ctx context.Context) (*session, error) {
	return openSession(ctx, a.cfg, a.log)
}
