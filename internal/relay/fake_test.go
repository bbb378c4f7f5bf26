package relay

import (
	"context"
	"errors"
	"testing"
)

var _ Terminal = (*FakeTerminal)(nil)
var _ Terminal = (*JEMATerminal)(nil)

func TestFakeTerminalSetNotifiesOnChange(t *testing.T) {
	f := NewFakeTerminal(false)
	var got []bool
	f.Subscribe(func(on bool) { got = append(got, on) })

	_ = f.Set(context.Background(), true)
	_ = f.Set(context.Background(), true)
	_ = f.Set(context.Background(), false)

	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected notifications [true false], got %v", got)
	}
	if calls := f.Calls(); len(calls) != 3 {
		t.Fatalf("expected 3 recorded calls, got %v", calls)
	}
}

func TestFakeTerminalSetError(t *testing.T) {
	f := NewFakeTerminal(false)
	f.SetErr = errors.New("boom")
	notified := false
	f.Subscribe(func(bool) { notified = true })

	if err := f.Set(context.Background(), true); err == nil {
		t.Fatal("expected error")
	}
	if f.Value() || notified {
		t.Fatal("state must not change on failed set")
	}
}

func TestFakeTerminalManual(t *testing.T) {
	f := NewFakeTerminal(false)
	f.Manual = true

	_ = f.Set(context.Background(), true)
	if f.Value() {
		t.Fatal("manual terminal must wait for Emit")
	}
	f.Emit(true)
	if !f.Value() {
		t.Fatal("expected value after Emit")
	}
}

func TestJEMAConfigDefaults(t *testing.T) {
	c := JEMAConfig{ControlPin: 17, MonitorPin: 27}.withDefaults()
	if c.Chip != "gpiochip0" {
		t.Fatalf("expected default chip, got %q", c.Chip)
	}
	if c.PulseDuration != DefaultPulse {
		t.Fatalf("expected default pulse, got %v", c.PulseDuration)
	}
}

func TestJEMATerminalSetBeforeSetup(t *testing.T) {
	term := NewJEMATerminal(JEMAConfig{ControlPin: 17, MonitorPin: 27})
	err := term.Set(context.Background(), true)
	if !errors.Is(err, ErrNotSetup) && !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected ErrNotSetup, got %v", err)
	}
	if term.Value() {
		t.Fatal("expected off before setup")
	}
}
