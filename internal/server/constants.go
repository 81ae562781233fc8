// Package server provides the local HTTP and WebSocket API
package server

import "time"

// Server configuration constants
const (
	// WebSocket trigger rate limiting, per connection
	RateLimitMessages = 5
	RateLimitWindow   = time.Second

	// Status snapshots are pushed to WebSocket clients when they change,
	// checked at this interval
	StatusPushInterval = 250 * time.Millisecond

	// Write deadline for a single WebSocket message
	WriteTimeout = 2 * time.Second

	// Window for /api/logs when no seconds parameter is given
	DefaultLogSeconds = 300
)
