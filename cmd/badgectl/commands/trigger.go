package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Press the badge button",
	Long: `Press the badge button remotely.

Starts a voice session when the phone is connected and idle, and stops
the current one when audio is active. A refused press reports why, for
example NOT_CONNECTED.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Trigger(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "trigger queued")
		return nil
	},
}
