package heater

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
)

// Relay is the binary terminal switching the heater. Set only requests a
// change; the relay's own change notification is authoritative.
type Relay interface {
	Value() bool
	Set(ctx context.Context, on bool) error
}

// TemperatureReader exposes the last polled room temperature.
type TemperatureReader interface {
	CurrentValue() float64
}

type Config struct {
	// Name identifies the accessory and keys its persisted setpoints.
	Name                 string
	ThresholdTemperature float64
}

// Snapshot is the read model handed to the outer surfaces.
type Snapshot struct {
	Name                 string
	CurrentTemperature   float64
	TargetTemperature    float64
	ThresholdTemperature float64
	DisplayUnits         DisplayUnits
	Heating              HeatingState
}

type Controller struct {
	log   logr.Logger
	name  string
	relay Relay
	temp  TemperatureReader
	store Store

	mu sync.RWMutex
	sp Setpoints

	// evalMu serializes hysteresis evaluations so a poll and a user command
	// never drive the relay at the same time.
	evalMu sync.Mutex

	subMu sync.Mutex
	subs  []func(HeatingState)
}

// New loads the persisted setpoints for cfg.Name and returns a controller
// ready to receive triggers.
func New(cfg Config, relay Relay, temp TemperatureReader, store Store, log logr.Logger) (*Controller, error) {
	sp, err := loadSetpoints(store, cfg.Name, cfg.ThresholdTemperature)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		log:   log.WithName("heater"),
		name:  cfg.Name,
		relay: relay,
		temp:  temp,
		store: store,
		sp:    sp,
	}
	if err := sp.Validate(); err != nil {
		c.log.Info("warning: setpoints will oscillate", "reason", err.Error(),
			"target", sp.TargetTemperature, "threshold", sp.ThresholdTemperature)
	}
	c.log.Info("setpoints loaded", "name", cfg.Name, "target", sp.TargetTemperature,
		"threshold", sp.ThresholdTemperature, "units", sp.DisplayUnits.String())
	return c, nil
}

func (c *Controller) Setpoints() Setpoints {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sp
}

func (c *Controller) Get() Snapshot {
	sp := c.Setpoints()
	return Snapshot{
		Name:                 c.name,
		CurrentTemperature:   c.temp.CurrentValue(),
		TargetTemperature:    sp.TargetTemperature,
		ThresholdTemperature: sp.ThresholdTemperature,
		DisplayUnits:         sp.DisplayUnits,
		Heating:              c.CurrentHeatingState(),
	}
}

func (c *Controller) CurrentHeatingState() HeatingState {
	return HeatingStateOf(c.relay.Value())
}

// TargetHeatingState mirrors the relay; there is no stored target mode.
func (c *Controller) TargetHeatingState() TargetState {
	if c.relay.Value() {
		return TargetHeat
	}
	return TargetOff
}

func (c *Controller) CurrentTemperature() float64 {
	return c.temp.CurrentValue()
}

// SetTargetState switches the relay. Unsupported states are logged and
// acknowledged without effect, so callers cannot tell them from success.
func (c *Controller) SetTargetState(ctx context.Context, s TargetState) error {
	var on bool
	switch s {
	case TargetHeat, TargetAuto:
		on = true
	case TargetOff:
		on = false
	default:
		c.log.Info("warning: target state not supported", "state", s.String(), "value", int(s))
		return nil
	}
	return c.relay.Set(ctx, on)
}

func (c *Controller) TargetTemperature() float64 {
	return c.Setpoints().TargetTemperature
}

func (c *Controller) SetTargetTemperature(ctx context.Context, v float64) error {
	c.mu.Lock()
	c.sp.TargetTemperature = v
	c.mu.Unlock()
	return c.Evaluate(ctx, c.temp.CurrentValue())
}

func (c *Controller) ThresholdTemperature() float64 {
	return c.Setpoints().ThresholdTemperature
}

func (c *Controller) SetThresholdTemperature(ctx context.Context, v float64) error {
	c.mu.Lock()
	c.sp.ThresholdTemperature = v
	c.mu.Unlock()
	return c.Evaluate(ctx, c.temp.CurrentValue())
}

func (c *Controller) DisplayUnits() DisplayUnits {
	return c.Setpoints().DisplayUnits
}

func (c *Controller) SetDisplayUnits(u DisplayUnits) error {
	if !u.Valid() {
		return ErrInvalidDisplayUnits
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sp.DisplayUnits = u
	return nil
}

// OnTemperatureChanged is the TemperatureSource change handler.
func (c *Controller) OnTemperatureChanged(ctx context.Context, v float64) error {
	return c.Evaluate(ctx, v)
}

// OnRelayChanged is the relay change handler. It only republishes the
// observed state, whatever caused the change. A synchronous relay calls it
// from inside Evaluate, so subscribers must not trigger an evaluation.
func (c *Controller) OnRelayChanged(on bool) {
	state := HeatingStateOf(on)
	c.log.V(1).Info("relay changed", "heating", state.String())

	c.subMu.Lock()
	subs := append([]func(HeatingState){}, c.subs...)
	c.subMu.Unlock()
	for _, fn := range subs {
		fn(state)
	}
}

func (c *Controller) SubscribeHeatingState(fn func(HeatingState)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs = append(c.subs, fn)
}

// Evaluate applies the hysteresis to a reading. Each branch fires only when
// the relay is not already in the wanted state. A failed command is not
// retried; the next trigger evaluates again.
func (c *Controller) Evaluate(ctx context.Context, current float64) error {
	c.evalMu.Lock()
	defer c.evalMu.Unlock()

	sp := c.Setpoints()
	if inDeadBand(current, sp.TargetTemperature, sp.ThresholdTemperature) {
		c.log.V(1).Info("dead band", "current", current)
	}

	if shouldTurnOn(current, sp.TargetTemperature, c.relay.Value()) {
		c.log.Info("turning heater on", "current", current, "target", sp.TargetTemperature)
		if err := c.relay.Set(ctx, true); err != nil {
			return err
		}
	}
	if shouldTurnOff(current, sp.ThresholdTemperature, c.relay.Value()) {
		c.log.Info("turning heater off", "current", current, "threshold", sp.ThresholdTemperature)
		if err := c.relay.Set(ctx, false); err != nil {
			return err
		}
	}
	return nil
}

// Save persists the setpoints. Called once at shutdown.
func (c *Controller) Save() error {
	sp := c.Setpoints()
	if err := saveSetpoints(c.store, c.name, sp); err != nil {
		return err
	}
	c.log.Info("setpoints saved", "name", c.name)
	return nil
}
