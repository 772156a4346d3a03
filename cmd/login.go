package cmd

import (
	"errors"
	"fmt"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newLoginCmd(app *app) *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and open a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" || password == "" {
				return errors.New("--email and --password are required")
			}

			cred, err := app.auth.Login(cmd.Context(), email, password)
			if err != nil {
				if errors.Is(err, domain.ErrInvalidCredentials) {
					return errors.New("login failed: invalid email or password")
				}
				return err
			}

			if err := app.session.ApplyLogin(cmd.Context(), cred); err != nil {
				return err
			}

			user, err := app.session.ResolveUser(cmd.Context())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", user.Username, user.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")

	return cmd
}
