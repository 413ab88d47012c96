// Package idle implements the inactivity countdown supervisor: a state
// machine that watches the conversation's activity signal and asks the
// connection collaborator to disconnect when the countdown expires.
package idle

import "fmt"

// Countdown bounds enforced by Config.Validate.
const (
	MinDurationSeconds = 30
	MaxDurationSeconds = 3600
	MinWarningSeconds  = 5
)

// Config holds the idle timeout settings. It is persisted independently of
// conversation snapshots.
type Config struct {
	DurationSeconds         int  `json:"durationSeconds" yaml:"duration_seconds"`
	WarningThresholdSeconds int  `json:"warningThresholdSeconds" yaml:"warning_threshold_seconds"`
	Enabled                 bool `json:"enabled" yaml:"enabled"`
}

// DefaultConfig is applied when no persisted or file configuration exists.
func DefaultConfig() Config {
	return Config{
		DurationSeconds:         300,
		WarningThresholdSeconds: 60,
		Enabled:                 true,
	}
}

// ValidationError describes a rejected configuration field. It is returned
// as a value, never panicked, so callers can render inline feedback.
type ValidationError struct {
	Field  string `json:"field"`
	Value  int    `json:"value"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("idle: invalid %s=%d: %s", e.Field, e.Value, e.Reason)
}

// Validate checks the configured ranges. Returns nil when the config is
// acceptable.
func (c Config) Validate() *ValidationError {
	if c.DurationSeconds < MinDurationSeconds || c.DurationSeconds > MaxDurationSeconds {
		return &ValidationError{
			Field:  "durationSeconds",
			Value:  c.DurationSeconds,
			Reason: fmt.Sprintf("must be between %d and %d", MinDurationSeconds, MaxDurationSeconds),
		}
	}
	if c.WarningThresholdSeconds < MinWarningSeconds || c.WarningThresholdSeconds >= c.DurationSeconds {
		return &ValidationError{
			Field:  "warningThresholdSeconds",
			Value:  c.WarningThresholdSeconds,
			Reason: fmt.Sprintf("must be between %d and durationSeconds-1", MinWarningSeconds),
		}
	}
	return nil
}
