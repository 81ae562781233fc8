// Package grpcclient is the client for the badge control API
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Per-call deadline when the caller's context has none
	DefaultCallTimeout = 5 * time.Second
)
