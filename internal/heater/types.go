package heater

import "fmt"

// HeatingState is what the relay is doing right now.
type HeatingState int

const (
	HeatingOff HeatingState = iota
	HeatingHeat
)

func HeatingStateOf(on bool) HeatingState {
	if on {
		return HeatingHeat
	}
	return HeatingOff
}

func (h HeatingState) String() string {
	if h == HeatingHeat {
		return "heat"
	}
	return "off"
}

// TargetState is an integer enum. Values line up with the HomeKit
// TargetHeatingCoolingState characteristic.
type TargetState int

const (
	TargetOff TargetState = iota
	TargetHeat
	TargetCool
	TargetAuto
)

// Supported reports whether the relay can honour the requested state.
// Cool is a valid request value but a heater cannot do it.
func (s TargetState) Supported() bool {
	return s == TargetOff || s == TargetHeat || s == TargetAuto
}

func (s TargetState) String() string {
	switch s {
	case TargetOff:
		return "off"
	case TargetHeat:
		return "heat"
	case TargetCool:
		return "cool"
	case TargetAuto:
		return "auto"
	default:
		return "unknown"
	}
}

func ParseTargetState(s string) (TargetState, error) {
	switch s {
	case "off":
		return TargetOff, nil
	case "heat":
		return TargetHeat, nil
	case "cool":
		return TargetCool, nil
	case "auto":
		return TargetAuto, nil
	default:
		return TargetOff, fmt.Errorf("%w: %q", ErrInvalidTargetState, s)
	}
}

// DisplayUnits is an integer enum matching HomeKit TemperatureDisplayUnits.
type DisplayUnits int

const (
	Celsius DisplayUnits = iota
	Fahrenheit
)

func (u DisplayUnits) Valid() bool {
	return u == Celsius || u == Fahrenheit
}

func (u DisplayUnits) String() string {
	switch u {
	case Celsius:
		return "celsius"
	case Fahrenheit:
		return "fahrenheit"
	default:
		return "unknown"
	}
}

func ParseDisplayUnits(s string) (DisplayUnits, error) {
	switch s {
	case "celsius":
		return Celsius, nil
	case "fahrenheit":
		return Fahrenheit, nil
	default:
		return Celsius, fmt.Errorf("%w: %q", ErrInvalidDisplayUnits, s)
	}
}

func (u DisplayUnits) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, ErrInvalidDisplayUnits
	}
	return []byte(u.String()), nil
}

func (u *DisplayUnits) UnmarshalText(b []byte) error {
	v, err := ParseDisplayUnits(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
