// Package relay drives the JEM-A terminal switching the heater.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNotSetup            = errors.New("relay: terminal not set up")
	ErrUnsupportedPlatform = errors.New("relay: not supported on this platform (requires Linux)")
)

// Terminal is a binary on/off relay with change notifications.
type Terminal interface {
	// Setup performs the one-time hardware initialization.
	Setup() error

	// Value returns the state reported by the terminal.
	Value() bool

	// Set requests a state. Completion does not mean the state changed;
	// Subscribe to observe the actual change.
	Set(ctx context.Context, on bool) error

	// Subscribe registers fn for every observed state change.
	Subscribe(fn func(on bool))

	Close() error
}

// notifier fans a state change out to subscribers.
type notifier struct {
	mu   sync.Mutex
	subs []func(bool)
}

func (n *notifier) Subscribe(fn func(on bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *notifier) notify(on bool) {
	n.mu.Lock()
	subs := append([]func(bool){}, n.subs...)
	n.mu.Unlock()
	for _, fn := range subs {
		fn(on)
	}
}
