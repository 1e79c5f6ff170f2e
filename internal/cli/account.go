package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/medinotes/internal/credential"
	"github.com/jwalitptl/medinotes/internal/identity"
)

func newSignInCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signin",
		Short: "Sign in and cache a token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			profile, err := s.profile(ctx)
			if err != nil {
				return userError(err)
			}
			cred, _, err := s.resolver.Cached(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s> on the %s plan.\nToken cached until %s.\n",
				profile.Name, profile.Email, profile.Plan, cred.Expiry.Format(time.RFC1123))
			return nil
		},
	}
}

func newSignOutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Revoke the cached token and clear it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			cred, found, err := s.resolver.Cached(ctx)
			if err != nil {
				return err
			}
			if found && cred.Valid(time.Now()) {
				var apiErr *identity.APIError
				if err := s.client.Logout(ctx, cred.Token); err != nil && !errors.As(err, &apiErr) {
					return fmt.Errorf("revoke token: %w", err)
				}
			}
			if err := s.resolver.Invalidate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached credential and account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			s, err := a.session(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			out := cmd.OutOrStdout()
			cred, found, err := s.resolver.Cached(ctx)
			if err != nil {
				return err
			}
			switch {
			case !found:
				fmt.Fprintln(out, "Not signed in.")
				return nil
			case !cred.Valid(time.Now()):
				fmt.Fprintf(out, "%s (expired %s)\n", credential.MsgSessionExpired, cred.Expiry.Format(time.RFC1123))
				return nil
			}

			profile, err := s.client.Me(ctx, cred.Token)
			if err != nil {
				fmt.Fprintf(out, "Token cached until %s, but the server rejected it: %v\n", cred.Expiry.Format(time.RFC1123), err)
				return nil
			}
			fmt.Fprintf(out, "Signed in as %s <%s>\nPlan: %s\nToken cached until %s\n",
				profile.Name, profile.Email, profile.Plan, cred.Expiry.Format(time.RFC1123))
			return nil
		},
	}
}

// userError swaps credential failures for the message a user should see.
func userError(err error) error {
	if msg := credential.UserMessage(err); msg != "" {
		return errors.New(msg)
	}
	if errors.Is(err, identity.ErrNoCredentials) || errors.Is(err, identity.ErrSignedOut) {
		return errors.New(credential.MsgAuthRequired)
	}
	return err
}
