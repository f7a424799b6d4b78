package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fail processing claims older than STALE_CLAIM_AFTER once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.openPostgres(); err != nil {
				return err
			}

			sweeper, err := rt.staleClaimSweeper(nil)
			if err != nil {
				return err
			}

			n, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "failed %d stale claim(s)\n", n)
			return nil
		},
	}
}
