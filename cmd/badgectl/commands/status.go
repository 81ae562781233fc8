package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openbadge/bridge/internal/hfp"
	"github.com/openbadge/bridge/internal/orchestrator"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show bridge status",
	Long: `Show the badge status, the phone link and the voice link.

Examples:
  badgectl status
  badgectl status --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial()
		if err != nil {
			return err
		}
		defer c.Close()

		snap, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), snap)
		}
		printStatus(cmd.OutOrStdout(), snap)
		return nil
	},
}

func printStatus(w io.Writer, s orchestrator.Snapshot) {
	fmt.Fprintf(w, "Device:   %s\n", s.Device)
	fmt.Fprintf(w, "Status:   %s (%s)\n", s.StatusText, s.Status)
	peer := "-"
	if !s.Session.Peer.IsZero() {
		peer = s.Session.Peer.String()
	}
	fmt.Fprintf(w, "Link:     %s  peer %s\n", s.Session.Link, peer)
	if s.Session.Audio == hfp.AudioActive {
		fmt.Fprintf(w, "Audio:    %s  codec %s  %d Hz\n", s.Session.Audio, s.Session.Codec, s.Audio.SampleRate)
	} else {
		fmt.Fprintf(w, "Audio:    %s\n", s.Session.Audio)
	}
	if s.VoiceSession != "" {
		fmt.Fprintf(w, "Session:  %s\n", s.VoiceSession)
	}
	fmt.Fprintf(w, "Traffic:  in %d B  out %d B  underruns %d\n", s.Audio.BytesIn, s.Audio.BytesOut, s.Audio.Underruns)
	fmt.Fprintf(w, "Triggers: %d\n", s.Triggers)
}
