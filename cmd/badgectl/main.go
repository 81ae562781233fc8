// Package main provides badgectl, the command line client for a running
// openbadge bridge.
//
// Usage:
//
//	badgectl [--addr host:port] <command>
//
// Commands:
//
//	status  - show link, audio and voice session state
//	trigger - press the badge button remotely
//	logs    - print recent status lines
package main

import (
	"fmt"
	"os"

	"github.com/openbadge/bridge/cmd/badgectl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
