package heater

import "errors"

var (
	ErrInvalidTargetState  = errors.New("invalid target state")
	ErrInvalidDisplayUnits = errors.New("invalid display units")
	ErrInvertedThresholds  = errors.New("threshold temperature is below target temperature")
	ErrCorruptSetpoints    = errors.New("corrupt persisted setpoints")
)
