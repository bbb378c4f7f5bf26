package relay

import "time"

// DefaultPulse is the control pulse width. JEM-A terminals expect at
// least 200ms.
const DefaultPulse = 500 * time.Millisecond

// JEMAConfig wires a JEM-A HA terminal: the control line pulses to toggle
// the appliance, the monitor line reports whether it is running.
type JEMAConfig struct {
	Chip          string
	ControlPin    int
	MonitorPin    int
	PulseDuration time.Duration
	ActiveLow     bool
}

func (c JEMAConfig) withDefaults() JEMAConfig {
	if c.Chip == "" {
		c.Chip = "gpiochip0"
	}
	if c.PulseDuration <= 0 {
		c.PulseDuration = DefaultPulse
	}
	return c
}
