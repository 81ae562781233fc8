package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logSeconds int

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent status lines",
	Long: `Print the lines the badge displayed recently.

Examples:
  badgectl logs
  badgectl logs --seconds 0   # everything still buffered`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logSeconds < 0 {
			return fmt.Errorf("--seconds must not be negative")
		}
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := c.RecentLogs(cmd.Context(), logSeconds)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		for _, e := range entries {
			fmt.Fprintln(cmd.OutOrStdout(), e.String())
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().IntVar(&logSeconds, "seconds", 300, "how far back to look; 0 for all")
}
