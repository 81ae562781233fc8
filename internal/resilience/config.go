package resilience

import "time"

// Circuit breaker presets
const (
	// Default configuration
	DefaultThreshold         = 5
	DefaultResetTimeout      = 30 * time.Second
	DefaultHalfOpenSuccesses = 3

	// Peer commands (AVRCP passthrough, voice recognition). A phone that
	// drops off mid-press should stop receiving commands quickly and be
	// probed again soon after.
	CommandThreshold         = 3
	CommandResetTimeout      = 5 * time.Second
	CommandHalfOpenSuccesses = 1

	// Control API client (badgectl -> openbadge)
	ControlThreshold         = 3
	ControlResetTimeout      = 10 * time.Second
	ControlHalfOpenSuccesses = 2
)

// Config holds circuit breaker settings.
type Config struct {
	Name              string        // appears in state-change logs
	Threshold         int           // failures before opening
	ResetTimeout      time.Duration // wait before half-open attempt
	HalfOpenSuccesses int           // successes needed to close
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:         DefaultThreshold,
		ResetTimeout:      DefaultResetTimeout,
		HalfOpenSuccesses: DefaultHalfOpenSuccesses,
	}
}

// CommandConfig guards commands sent to the connected phone.
func CommandConfig(name string) Config {
	return Config{
		Name:              name,
		Threshold:         CommandThreshold,
		ResetTimeout:      CommandResetTimeout,
		HalfOpenSuccesses: CommandHalfOpenSuccesses,
	}
}

// ControlConfig guards control API calls from the CLI.
func ControlConfig() Config {
	return Config{
		Name:              "control",
		Threshold:         ControlThreshold,
		ResetTimeout:      ControlResetTimeout,
		HalfOpenSuccesses: ControlHalfOpenSuccesses,
	}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = DefaultResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}
	return c
}
