package cmd

import (
	"errors"
	"fmt"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newRegisterCmd(app *app) *cobra.Command {
	var username string
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || email == "" || password == "" {
				return errors.New("--username, --email and --password are required")
			}

			err := app.auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				var validationErr *domain.ValidationError
				if errors.As(err, &validationErr) {
					for field, message := range validationErr.Fields {
						_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", field, message)
					}
				}
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Account created. You can now log in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	return cmd
}

func newLogoutCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Close the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Best-effort server-side invalidation; the local credential is
			// cleared regardless of network outcome.
			if err := app.auth.Logout(cmd.Context()); err != nil {
				return err
			}
			app.session.ApplyLogout(cmd.Context())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := app.session.ResolveUser(cmd.Context())
			if err != nil {
				if errors.Is(err, domain.ErrSessionExpired) {
					return errors.New("not logged in")
				}
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s), id %d\n", user.Username, user.Email, user.ID)
			return nil
		},
	}
}
