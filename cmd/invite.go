package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newInviteCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Send or answer collaboration invites",
	}

	cmd.AddCommand(newInviteSendCmd(app), newInviteAcceptCmd(app), newInviteRefuseCmd(app))

	return cmd
}

func newInviteSendCmd(app *app) *cobra.Command {
	var draftID int64
	var recipientID int64

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Invite a user to collaborate on a draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if draftID <= 0 || recipientID <= 0 {
				return errors.New("--draft and --to are required")
			}

			teardown, err := app.openRealtime(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			if err := waitConnected(app, cmd); err != nil {
				return err
			}

			app.channel.SendInvite(draftID, recipientID)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Invite sent to user %d for draft %d\n", recipientID, draftID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&draftID, "draft", 0, "Draft beat ID")
	cmd.Flags().Int64Var(&recipientID, "to", 0, "Recipient user ID")

	return cmd
}

func newInviteAcceptCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "accept <invite-id>",
		Short: "Accept an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inviteID, err := parseInviteID(args[0])
			if err != nil {
				return err
			}

			teardown, err := app.openRealtime(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			if err := waitConnected(app, cmd); err != nil {
				return err
			}

			app.channel.AcceptInvite(inviteID)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Invite %d accepted\n", inviteID)
			return nil
		},
	}
}

func newInviteRefuseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refuse <invite-id>",
		Short: "Refuse an invite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inviteID, err := parseInviteID(args[0])
			if err != nil {
				return err
			}

			teardown, err := app.openRealtime(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			if err := waitConnected(app, cmd); err != nil {
				return err
			}

			app.channel.RefuseInvite(inviteID)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Invite %d refused\n", inviteID)
			return nil
		},
	}
}

func parseInviteID(raw string) (int64, error) {
	inviteID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || inviteID <= 0 {
		return 0, fmt.Errorf("invalid invite id %q", raw)
	}
	return inviteID, nil
}

func waitConnected(app *app, cmd *cobra.Command) error {
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if app.channel.Connected() {
			return nil
		}
		select {
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		case <-deadline:
			return errors.New("realtime connection not established")
		case <-ticker.C:
		}
	}
}
