//go:build linux

package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// JEMATerminal drives a JEM-A terminal wired to GPIO.
type JEMATerminal struct {
	notifier
	cfg JEMAConfig

	mu      sync.Mutex
	chip    *gpiocdev.Chip
	control *gpiocdev.Line
	monitor *gpiocdev.Line

	value atomic.Bool
}

func NewJEMATerminal(cfg JEMAConfig) *JEMATerminal {
	return &JEMATerminal{cfg: cfg.withDefaults()}
}

// Setup requests the control line as output (released) and the monitor
// line as input with edge events.
func (t *JEMATerminal) Setup() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	chip, err := gpiocdev.NewChip(t.cfg.Chip)
	if err != nil {
		return fmt.Errorf("open gpio chip %s: %w", t.cfg.Chip, err)
	}

	controlOpts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	monitorOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullDown,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(t.onEvent),
	}
	if t.cfg.ActiveLow {
		controlOpts = append(controlOpts, gpiocdev.AsActiveLow)
		monitorOpts = append(monitorOpts, gpiocdev.AsActiveLow)
	}

	control, err := chip.RequestLine(t.cfg.ControlPin, controlOpts...)
	if err != nil {
		chip.Close()
		return fmt.Errorf("request control pin %d: %w", t.cfg.ControlPin, err)
	}
	monitor, err := chip.RequestLine(t.cfg.MonitorPin, monitorOpts...)
	if err != nil {
		control.Close()
		chip.Close()
		return fmt.Errorf("request monitor pin %d: %w", t.cfg.MonitorPin, err)
	}

	v, err := monitor.Value()
	if err != nil {
		monitor.Close()
		control.Close()
		chip.Close()
		return fmt.Errorf("read monitor pin %d: %w", t.cfg.MonitorPin, err)
	}
	t.value.Store(v == 1)

	t.chip = chip
	t.control = control
	t.monitor = monitor
	return nil
}

func (t *JEMATerminal) onEvent(evt gpiocdev.LineEvent) {
	on := evt.Type == gpiocdev.LineEventRisingEdge
	if t.value.Swap(on) != on {
		t.notify(on)
	}
}

func (t *JEMATerminal) Value() bool {
	return t.value.Load()
}

// Set pulses the control line when the monitor disagrees with the request.
// The monitor edge, not the pulse, updates Value.
func (t *JEMATerminal) Set(ctx context.Context, on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.control == nil {
		return ErrNotSetup
	}
	if t.value.Load() == on {
		return nil
	}

	if err := t.control.SetValue(1); err != nil {
		return fmt.Errorf("assert control pin: %w", err)
	}
	timer := time.NewTimer(t.cfg.PulseDuration)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// Always release, even when the caller gave up mid-pulse.
	if err := t.control.SetValue(0); err != nil {
		return fmt.Errorf("release control pin: %w", err)
	}
	return waitErr
}

// Close releases the lines, leaving the control line inactive.
func (t *JEMATerminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.control != nil {
		if err := t.control.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release control pin: %w", err))
		}
		if err := t.control.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close control pin: %w", err))
		}
		t.control = nil
	}
	if t.monitor != nil {
		if err := t.monitor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close monitor pin: %w", err))
		}
		t.monitor = nil
	}
	if t.chip != nil {
		if err := t.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		t.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
