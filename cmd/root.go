package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bl",
		Short:         "Beatlink CLI (bl): session and collaboration feed for the beat marketplace",
		Long:          "bl manages your beat-marketplace session (login, register, logout) and follows the live collaboration feed: notification backlog, invitation pushes, and invite actions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newWhoamiCmd(app),
		newNotificationsCmd(app),
		newInviteCmd(app),
	)

	return rootCmd
}
