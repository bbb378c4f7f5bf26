package heater

// Two-threshold hysteresis. Below target the heater must be on, above
// threshold it must be off, in between nothing happens.

func shouldTurnOn(current, target float64, relayOn bool) bool {
	return current < target && !relayOn
}

func shouldTurnOff(current, threshold float64, relayOn bool) bool {
	return current > threshold && relayOn
}

// inDeadBand reports whether a reading sits strictly between target and
// threshold, where the relay is left alone whatever its state.
func inDeadBand(current, target, threshold float64) bool {
	return current > target && current < threshold
}
