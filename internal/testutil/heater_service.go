package testutil

import (
	"context"

	"github.com/Agrid-Dev/jemheater/internal/heater"
)

// FakeHeaterService is a reusable fake implementing ports.HeaterService.
// Put ONLY what multiple test packages need here.
type FakeHeaterService struct {
	S heater.Snapshot

	SetTargetStateCalled bool
	SetTargetStateArg    heater.TargetState
	SetTargetStateErr    error

	SetTargetTemperatureCalled bool
	SetTargetTemperatureArg    float64
	SetTargetTemperatureErr    error

	SetThresholdTemperatureCalled bool
	SetThresholdTemperatureArg    float64
	SetThresholdTemperatureErr    error

	SetDisplayUnitsCalled bool
	SetDisplayUnitsArg    heater.DisplayUnits
	SetDisplayUnitsErr    error

	subs []func(heater.HeatingState)
}

func NewFakeHeaterService() *FakeHeaterService {
	return &FakeHeaterService{
		S: heater.Snapshot{
			Name:                 "default",
			CurrentTemperature:   21,
			TargetTemperature:    20,
			ThresholdTemperature: 24,
			DisplayUnits:         heater.Celsius,
			Heating:              heater.HeatingOff,
		},
	}
}

func (f *FakeHeaterService) Get() heater.Snapshot { return f.S }

func (f *FakeHeaterService) SetTargetState(_ context.Context, s heater.TargetState) error {
	f.SetTargetStateCalled = true
	f.SetTargetStateArg = s
	if f.SetTargetStateErr != nil {
		return f.SetTargetStateErr
	}
	switch s {
	case heater.TargetHeat, heater.TargetAuto:
		f.S.Heating = heater.HeatingHeat
	case heater.TargetOff:
		f.S.Heating = heater.HeatingOff
	}
	return nil
}

func (f *FakeHeaterService) SetTargetTemperature(_ context.Context, v float64) error {
	f.SetTargetTemperatureCalled = true
	f.SetTargetTemperatureArg = v
	if f.SetTargetTemperatureErr != nil {
		return f.SetTargetTemperatureErr
	}
	f.S.TargetTemperature = v
	return nil
}

func (f *FakeHeaterService) SetThresholdTemperature(_ context.Context, v float64) error {
	f.SetThresholdTemperatureCalled = true
	f.SetThresholdTemperatureArg = v
	if f.SetThresholdTemperatureErr != nil {
		return f.SetThresholdTemperatureErr
	}
	f.S.ThresholdTemperature = v
	return nil
}

func (f *FakeHeaterService) SetDisplayUnits(u heater.DisplayUnits) error {
	f.SetDisplayUnitsCalled = true
	f.SetDisplayUnitsArg = u
	if f.SetDisplayUnitsErr != nil {
		return f.SetDisplayUnitsErr
	}
	if !u.Valid() {
		return heater.ErrInvalidDisplayUnits
	}
	f.S.DisplayUnits = u
	return nil
}

func (f *FakeHeaterService) SubscribeHeatingState(fn func(heater.HeatingState)) {
	f.subs = append(f.subs, fn)
}

// EmitHeatingState simulates the relay reporting a change.
func (f *FakeHeaterService) EmitHeatingState(s heater.HeatingState) {
	f.S.Heating = s
	for _, fn := range f.subs {
		fn(s)
	}
}
