// Package device wires the temperature source, the relay and the heater
// controller of one accessory and owns their lifecycle.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/Agrid-Dev/jemheater/internal/heater"
	"github.com/Agrid-Dev/jemheater/internal/relay"
	"github.com/Agrid-Dev/jemheater/internal/temperature"
)

const evaluateTimeout = 10 * time.Second

// Source is the subset of temperature.Source the device drives.
type Source interface {
	Start(interval time.Duration)
	Stop()
	Subscribe(fn func(float64))
}

var _ Source = (*temperature.Source)(nil)

type Device struct {
	ID     string
	Heater *heater.Controller
	Source Source
	Relay  relay.Terminal

	log logr.Logger
}

// New connects the change notifications: a new reading evaluates the
// hysteresis, a relay change is republished as the heating state.
func New(id string, h *heater.Controller, src Source, r relay.Terminal, log logr.Logger) *Device {
	d := &Device{ID: id, Heater: h, Source: src, Relay: r, log: log.WithName("device")}

	src.Subscribe(func(v float64) {
		ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
		defer cancel()
		if err := h.OnTemperatureChanged(ctx, v); err != nil {
			d.log.Error(err, "hysteresis evaluation failed", "current", v)
		}
	})
	r.Subscribe(h.OnRelayChanged)
	return d
}

// Ready initializes the relay hardware and starts polling.
func (d *Device) Ready(interval time.Duration) error {
	if err := d.Relay.Setup(); err != nil {
		return fmt.Errorf("relay setup: %w", err)
	}
	d.Source.Start(interval)
	d.log.Info("ready", "id", d.ID, "interval", interval.String())
	return nil
}

// Shutdown stops polling, persists the setpoints and releases the relay.
// Every step runs even if an earlier one failed.
func (d *Device) Shutdown() error {
	d.Source.Stop()

	var errs []error
	if err := d.Heater.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save setpoints: %w", err))
	}
	if err := d.Relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("relay close: %w", err))
	}
	d.log.Info("shut down", "id", d.ID)
	return errors.Join(errs...)
}
