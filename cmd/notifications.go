package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/averlane/beatlink-cli/internal/adapters/render/feed"
	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/spf13/cobra"
)

func newNotificationsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notifs"},
		Short:   "Show the collaboration feed",
	}

	cmd.AddCommand(newNotificationsListCmd(app), newNotificationsWatchCmd(app))

	return cmd
}

func newNotificationsListCmd(app *app) *cobra.Command {
	var wait time.Duration
	var compact bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch and print the notification backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			teardown, err := app.openRealtime(cmd.Context())
			if err != nil {
				return err
			}
			defer teardown()

			// The server pushes the backlog snapshot right after the
			// handshake; wait for the first list change.
			arrived := make(chan struct{}, 1)
			subID := app.stream.Subscribe(func() {
				select {
				case arrived <- struct{}{}:
				default:
				}
			})
			defer app.stream.Unsubscribe(subID)

			select {
			case <-arrived:
			case <-time.After(wait):
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), feed.Render(app.stream.Snapshot(), feed.RenderOptions{
				Now:     time.Now(),
				Compact: compact,
			}))
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "How long to wait for the backlog snapshot")
	cmd.Flags().BoolVar(&compact, "compact", false, "Show only the newest entries")

	return cmd
}

func newNotificationsWatchCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the feed until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			teardown, err := app.openRealtime(ctx)
			if err != nil {
				return err
			}
			defer teardown()

			changed := make(chan struct{}, 1)
			subID := app.stream.Subscribe(func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			defer app.stream.Unsubscribe(subID)

			seen := make(map[int64]bool)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					snapshot := app.stream.Snapshot()
					for _, entry := range snapshot {
						if entry.Live && !seen[entry.ID] {
							app.toasts.Push(domain.Toast{Message: entry.Message, Level: string(entry.Kind)})
						}
						seen[entry.ID] = true
					}

					_, _ = fmt.Fprintln(cmd.OutOrStdout(), feed.Render(snapshot, feed.RenderOptions{
						Now:     time.Now(),
						Compact: true,
					}))

					// One toast at a time, each held for the dwell time.
					for {
						toast, ok := app.toasts.Pop()
						if !ok {
							break
						}
						_, _ = fmt.Fprintln(cmd.OutOrStdout(), feed.RenderToast(toast))
						select {
						case <-ctx.Done():
							return nil
						case <-time.After(app.toasts.Dwell()):
						}
					}
				}
			}
		},
	}

	return cmd
}
