package ports

import (
	"context"

	"github.com/Agrid-Dev/jemheater/internal/heater"
)

// HeaterService is the control-plane port used by controllers (HTTP/MQTT/etc).
type HeaterService interface {
	Get() heater.Snapshot
	SetTargetState(context.Context, heater.TargetState) error
	SetTargetTemperature(context.Context, float64) error
	SetThresholdTemperature(context.Context, float64) error
	SetDisplayUnits(heater.DisplayUnits) error
}

// HeaterEvents lets push-based controllers follow state changes.
type HeaterEvents interface {
	SubscribeHeatingState(func(heater.HeatingState))
}
