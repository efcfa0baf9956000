package config

import (
	"fmt"
	"time"
)

// SwitchConfig holds the switch rules. Minute and hour values are numbers so
// fractional settings like 0.5 hours keep working.
type SwitchConfig struct {
	DoubleSwitchCooldownHours       float64       `yaml:"double_switch_cooldown_hours"`
	DoubleSwitchDelaySeconds        float64       `yaml:"double_switch_delay_seconds"`
	SwitchCooldownHours             float64       `yaml:"switch_cooldown_hours"`
	SwitchCooldownMinutes           float64       `yaml:"switch_cooldown_minutes"`
	SwitchEnabledMinutes            float64       `yaml:"switch_enabled_minutes"`
	DoubleSwitchEnabledMinutes      float64       `yaml:"double_switch_enabled_minutes"`
	MaxUnbalancedSlots              int           `yaml:"max_unbalanced_slots"`
	SwitchToOldTeamAfterRejoin      bool          `yaml:"switch_to_old_team_after_rejoin"`
	ScrambleLockdownDurationMinutes float64       `yaml:"scramble_lockdown_duration_minutes"`
	MatchEndGrace                   time.Duration `yaml:"matchend_grace"`
	RejoinDelay                     time.Duration `yaml:"rejoin_delay"`
	SessionSweepInterval            time.Duration `yaml:"session_sweep_interval"`
}

// DefaultSwitchConfig returns the stock rules. The YAML decoder fills a copy
// of it, so keys missing from the file keep these values while an explicit 0
// is honoured.
func DefaultSwitchConfig() SwitchConfig {
	return SwitchConfig{
		DoubleSwitchCooldownHours:       0.5,
		DoubleSwitchDelaySeconds:        1,
		SwitchCooldownHours:             3,
		SwitchCooldownMinutes:           0,
		SwitchEnabledMinutes:            5,
		DoubleSwitchEnabledMinutes:      5,
		MaxUnbalancedSlots:              3,
		ScrambleLockdownDurationMinutes: 20,
		MatchEndGrace:                   15 * time.Second,
		RejoinDelay:                     5 * time.Second,
		SessionSweepInterval:            5 * time.Minute,
	}
}

// Validate rejects negative settings
func (c SwitchConfig) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"double_switch_cooldown_hours", c.DoubleSwitchCooldownHours},
		{"double_switch_delay_seconds", c.DoubleSwitchDelaySeconds},
		{"switch_cooldown_hours", c.SwitchCooldownHours},
		{"switch_cooldown_minutes", c.SwitchCooldownMinutes},
		{"switch_enabled_minutes", c.SwitchEnabledMinutes},
		{"double_switch_enabled_minutes", c.DoubleSwitchEnabledMinutes},
		{"max_unbalanced_slots", float64(c.MaxUnbalancedSlots)},
		{"scramble_lockdown_duration_minutes", c.ScrambleLockdownDurationMinutes},
	}
	for _, check := range checks {
		if check.value < 0 {
			return fmt.Errorf("switch.%s must not be negative", check.name)
		}
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("switch.session_sweep_interval must be positive")
	}
	return nil
}

func minutes(v float64) time.Duration {
	return time.Duration(v * float64(time.Minute))
}

func hours(v float64) time.Duration {
	return time.Duration(v * float64(time.Hour))
}

// CooldownDuration is the time between two immediate switches. Minutes
// override hours when non-zero.
func (c SwitchConfig) CooldownDuration() time.Duration {
	if c.SwitchCooldownMinutes > 0 {
		return minutes(c.SwitchCooldownMinutes)
	}
	return hours(c.SwitchCooldownHours)
}

// DoubleSwitchCooldown is the in-memory cooldown between double switches
func (c SwitchConfig) DoubleSwitchCooldown() time.Duration {
	return hours(c.DoubleSwitchCooldownHours)
}

// DoubleSwitchDelay is the pause between the two halves of a double switch
func (c SwitchConfig) DoubleSwitchDelay() time.Duration {
	return time.Duration(c.DoubleSwitchDelaySeconds * float64(time.Second))
}

// Window is how long after join or match start an immediate switch is open
func (c SwitchConfig) Window() time.Duration {
	return minutes(c.SwitchEnabledMinutes)
}

// DoubleWindow is the same window for double switches
func (c SwitchConfig) DoubleWindow() time.Duration {
	return minutes(c.DoubleSwitchEnabledMinutes)
}

// LockdownDuration is how long a scramble blocks switching
func (c SwitchConfig) LockdownDuration() time.Duration {
	return minutes(c.ScrambleLockdownDurationMinutes)
}
