package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openbadge/bridge/internal/config"
	"github.com/openbadge/bridge/internal/grpcclient"
)

var (
	addr       string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "badgectl",
	Short: "Control a running openbadge bridge",
	Long: `Control a running openbadge bridge over its gRPC control API.

The address defaults to CONTROL_ADDR, or the bridge's built-in default.

Examples:
  badgectl status
  badgectl --addr badge.local:50061 trigger
  badgectl logs --seconds 60`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", config.Load().ControlAddr, "bridge control address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(logsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func dial() (*grpcclient.Client, error) {
	c, err := grpcclient.New(addr, grpcclient.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return c, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
