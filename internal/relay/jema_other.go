//go:build !linux

package relay

import "context"

// JEMATerminal is not available on non-Linux platforms.
type JEMATerminal struct {
	notifier
}

func NewJEMATerminal(_ JEMAConfig) *JEMATerminal {
	return &JEMATerminal{}
}

func (t *JEMATerminal) Setup() error { return ErrUnsupportedPlatform }

func (t *JEMATerminal) Value() bool { return false }

func (t *JEMATerminal) Set(_ context.Context, _ bool) error { return ErrUnsupportedPlatform }

func (t *JEMATerminal) Close() error { return nil }
