// Package homekitctrl exposes the heater as a HomeKit thermostat accessory.
package homekitctrl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"
	"github.com/brutella/hap/characteristic"
	"github.com/brutella/hap/service"
	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/ports"
)

const (
	Manufacturer = "Kawabata Farm"
	Model        = "JEM-A Heater"
)

const commandTimeout = 5 * time.Second

type Config struct {
	DeviceID string
	Name     string

	// Pin is the 8 digit setup code, formatted without dashes.
	Pin  string
	Addr string

	// StoreDir holds the pairing database.
	StoreDir string

	SyncInterval time.Duration
}

// thermostat is the HAP thermostat service with a heating threshold.
type thermostat struct {
	*service.S

	CurrentHeatingCoolingState  *characteristic.CurrentHeatingCoolingState
	TargetHeatingCoolingState   *characteristic.TargetHeatingCoolingState
	CurrentTemperature          *characteristic.CurrentTemperature
	TargetTemperature           *characteristic.TargetTemperature
	TemperatureDisplayUnits     *characteristic.TemperatureDisplayUnits
	HeatingThresholdTemperature *characteristic.HeatingThresholdTemperature
}

func newThermostat() *thermostat {
	s := thermostat{}
	s.S = service.New(service.TypeThermostat)

	s.CurrentHeatingCoolingState = characteristic.NewCurrentHeatingCoolingState()
	s.AddC(s.CurrentHeatingCoolingState.C)

	s.TargetHeatingCoolingState = characteristic.NewTargetHeatingCoolingState()
	s.AddC(s.TargetHeatingCoolingState.C)

	s.CurrentTemperature = characteristic.NewCurrentTemperature()
	s.AddC(s.CurrentTemperature.C)

	s.TargetTemperature = characteristic.NewTargetTemperature()
	s.AddC(s.TargetTemperature.C)

	s.TemperatureDisplayUnits = characteristic.NewTemperatureDisplayUnits()
	s.AddC(s.TemperatureDisplayUnits.C)

	s.HeatingThresholdTemperature = characteristic.NewHeatingThresholdTemperature()
	s.HeatingThresholdTemperature.SetMaxValue(35)
	s.AddC(s.HeatingThresholdTemperature.C)

	return &s
}

type Controller struct {
	svc ports.HeaterService
	cfg Config
	log logr.Logger

	acc *accessory.A
	th  *thermostat
}

// New builds the accessory and binds remote updates to svc. When events is
// non-nil, heating state changes are pushed as they happen instead of on
// the next sync tick.
func New(svc ports.HeaterService, events ports.HeaterEvents, cfg Config, log logr.Logger) (*Controller, error) {
	if cfg.Name == "" {
		return nil, errors.New("homekit: Name is required")
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = "./db"
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Second
	}

	c := &Controller{
		svc: svc,
		cfg: cfg,
		log: log.WithName("homekit"),
		th:  newThermostat(),
	}

	c.acc = accessory.New(accessory.Info{
		Name:         cfg.Name,
		SerialNumber: cfg.DeviceID,
		Manufacturer: Manufacturer,
		Model:        Model,
	}, accessory.TypeThermostat)
	c.acc.AddS(c.th.S)
	c.acc.IdentifyFunc = func(*http.Request) {
		c.log.Info("identify")
	}

	// A returned error is reported to the controller as a failed write and
	// the characteristic keeps its previous value.
	c.th.TargetHeatingCoolingState.OnSetRemoteValue(c.onTargetState)
	c.th.TargetTemperature.OnSetRemoteValue(c.onTargetTemperature)
	c.th.HeatingThresholdTemperature.OnSetRemoteValue(c.onThresholdTemperature)
	c.th.TemperatureDisplayUnits.OnSetRemoteValue(c.onDisplayUnits)

	if events != nil {
		events.SubscribeHeatingState(c.onHeatingState)
	}

	c.Sync()
	return c, nil
}

// Run serves the accessory until ctx is canceled.
func (c *Controller) Run(ctx context.Context) error {
	server, err := hap.NewServer(hap.NewFsStore(c.cfg.StoreDir), c.acc)
	if err != nil {
		return fmt.Errorf("homekit: new server: %w", err)
	}
	if c.cfg.Pin != "" {
		server.Pin = c.cfg.Pin
	}
	if c.cfg.Addr != "" {
		server.Addr = c.cfg.Addr
	}

	go c.syncLoop(ctx)

	c.log.Info("serving accessory", "name", c.cfg.Name, "addr", c.cfg.Addr)
	return server.ListenAndServe(ctx)
}

func (c *Controller) syncLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sync()
		}
	}
}

// Sync copies the current snapshot into the characteristics.
func (c *Controller) Sync() {
	s := c.svc.Get()
	c.th.CurrentTemperature.SetValue(s.CurrentTemperature)
	c.th.TargetTemperature.SetValue(s.TargetTemperature)
	c.th.HeatingThresholdTemperature.SetValue(s.ThresholdTemperature)
	c.th.TemperatureDisplayUnits.SetValue(unitsToHAP(s.DisplayUnits))
	c.onHeatingState(s.Heating)
}

func (c *Controller) onHeatingState(s heater.HeatingState) {
	c.th.CurrentHeatingCoolingState.SetValue(heatingStateToHAP(s))
	c.th.TargetHeatingCoolingState.SetValue(targetStateToHAP(s))
}

func (c *Controller) onTargetState(v int) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.svc.SetTargetState(ctx, targetStateFromHAP(v)); err != nil {
		c.log.Error(err, "set target state failed", "value", v)
		return err
	}
	return nil
}

func (c *Controller) onTargetTemperature(v float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.svc.SetTargetTemperature(ctx, v); err != nil {
		c.log.Error(err, "set target temperature failed", "value", v)
		return err
	}
	return nil
}

func (c *Controller) onThresholdTemperature(v float64) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.svc.SetThresholdTemperature(ctx, v); err != nil {
		c.log.Error(err, "set threshold temperature failed", "value", v)
		return err
	}
	return nil
}

func (c *Controller) onDisplayUnits(v int) error {
	if err := c.svc.SetDisplayUnits(unitsFromHAP(v)); err != nil {
		c.log.Error(err, "set display units failed", "value", v)
		return err
	}
	return nil
}

func heatingStateToHAP(s heater.HeatingState) int {
	if s == heater.HeatingHeat {
		return characteristic.CurrentHeatingCoolingStateHeat
	}
	return characteristic.CurrentHeatingCoolingStateOff
}

// targetStateToHAP reports the target as the relay state; there is no
// stored mode to show.
func targetStateToHAP(s heater.HeatingState) int {
	if s == heater.HeatingHeat {
		return characteristic.TargetHeatingCoolingStateHeat
	}
	return characteristic.TargetHeatingCoolingStateOff
}

// targetStateFromHAP maps unknown values to an out-of-range state, which
// the heater logs and ignores.
func targetStateFromHAP(v int) heater.TargetState {
	switch v {
	case characteristic.TargetHeatingCoolingStateOff:
		return heater.TargetOff
	case characteristic.TargetHeatingCoolingStateHeat:
		return heater.TargetHeat
	case characteristic.TargetHeatingCoolingStateCool:
		return heater.TargetCool
	case characteristic.TargetHeatingCoolingStateAuto:
		return heater.TargetAuto
	}
	return heater.TargetState(v)
}

func unitsToHAP(u heater.DisplayUnits) int {
	if u == heater.Fahrenheit {
		return characteristic.TemperatureDisplayUnitsFahrenheit
	}
	return characteristic.TemperatureDisplayUnitsCelsius
}

func unitsFromHAP(v int) heater.DisplayUnits {
	switch v {
	case characteristic.TemperatureDisplayUnitsCelsius:
		return heater.Celsius
	case characteristic.TemperatureDisplayUnitsFahrenheit:
		return heater.Fahrenheit
	}
	return heater.DisplayUnits(v)
}
