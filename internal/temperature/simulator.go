package temperature

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

var ErrNegativeHeatLossCoefficient = errors.New("heat loss coefficient must be >= 0")

type SimulatorParams struct {
	InitialTemperature float64
	OutdoorTemperature float64
	Coefficient        float64 // >= 0, represents conductivity. 0 for no loss.
	HeatingRate        float64 // degrees per second while the heater runs
}

func (p *SimulatorParams) Validate() error {
	if p.Coefficient < 0 {
		return ErrNegativeHeatLossCoefficient
	}
	return nil
}

// Simulator stands in for a real sensor on a bench: the room loses heat
// toward the outdoor temperature and gains HeatingRate while heating.
type Simulator struct {
	params  SimulatorParams
	heating func() bool
	now     func() time.Time

	mu   sync.Mutex
	temp float64
	last time.Time
}

func NewSimulator(params SimulatorParams, heating func() bool) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{
		params:  params,
		heating: heating,
		now:     time.Now,
		temp:    params.InitialTemperature,
	}, nil
}

// DeltaTemperature is the heat exchanged with the outside over dt.
func (s *Simulator) DeltaTemperature(indoor float64, dt time.Duration) float64 {
	diff := s.params.OutdoorTemperature - indoor
	return s.params.Coefficient * diff * dt.Seconds()
}

// Step advances the model by dt and returns the new temperature.
func (s *Simulator) Step(dt time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.temp += s.DeltaTemperature(s.temp, dt)
	if s.heating != nil && s.heating() {
		s.temp += s.params.HeatingRate * dt.Seconds()
	}
	return s.temp
}

// FetchTemperature steps the model by the time since the previous call and
// reports it with the 0.1 degree resolution of a Switchbot meter.
func (s *Simulator) FetchTemperature(_ context.Context) (float64, error) {
	now := s.now()
	s.mu.Lock()
	var dt time.Duration
	if !s.last.IsZero() {
		dt = now.Sub(s.last)
	}
	s.last = now
	s.mu.Unlock()
	return math.Round(s.Step(dt)*10) / 10, nil
}
