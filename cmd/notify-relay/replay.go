package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <notification-id>",
		Short: "Queue a new delivery for a failed notification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.openPostgres(); err != nil {
				return err
			}

			resolver, err := rt.configResolver()
			if err != nil {
				return err
			}
			notifications, err := rt.notificationService(resolver)
			if err != nil {
				return err
			}

			replay, err := notifications.Replay(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued replay %s for %s\n", replay.ID, args[0])
			return nil
		},
	}
}
