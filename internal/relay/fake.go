package relay

import (
	"context"
	"sync"
)

// FakeTerminal is a test double recording every Set call.
type FakeTerminal struct {
	notifier

	mu    sync.Mutex
	value bool

	// SetCalls records the requested states in order.
	SetCalls []bool

	// SetErr, if set, is returned by Set and the state is left unchanged.
	SetErr error

	// Manual leaves the state untouched on Set; tests call Emit to
	// simulate the hardware catching up.
	Manual bool

	SetupCalled bool
	Closed      bool
}

func NewFakeTerminal(initial bool) *FakeTerminal {
	return &FakeTerminal{value: initial}
}

func (f *FakeTerminal) Setup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetupCalled = true
	return nil
}

func (f *FakeTerminal) Value() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *FakeTerminal) Set(_ context.Context, on bool) error {
	f.mu.Lock()
	f.SetCalls = append(f.SetCalls, on)
	if f.SetErr != nil {
		err := f.SetErr
		f.mu.Unlock()
		return err
	}
	manual := f.Manual
	f.mu.Unlock()

	if !manual {
		f.Emit(on)
	}
	return nil
}

// Emit changes the state as if the hardware did it and notifies
// subscribers when the value actually changed.
func (f *FakeTerminal) Emit(on bool) {
	f.mu.Lock()
	changed := f.value != on
	f.value = on
	f.mu.Unlock()
	if changed {
		f.notify(on)
	}
}

// Calls returns a copy of SetCalls, safe to use while Set runs elsewhere.
func (f *FakeTerminal) Calls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.SetCalls...)
}

func (f *FakeTerminal) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
