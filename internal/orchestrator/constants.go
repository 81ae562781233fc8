// Package orchestrator runs the badge main loop: transport events into the
// session, the push-to-talk input into voice sessions, and status out to the
// board.
package orchestrator

import "time"

// Orchestrator configuration constants
const (
	// Fallback tick when the configured poll interval is unusable
	DefaultPollInterval = 10 * time.Millisecond

	// Logbook sizing for callers that build their own
	LogbookEventBuffer = 100
)
