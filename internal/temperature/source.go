// Package temperature polls a remote sensor and reports changes.
package temperature

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// DefaultValue is reported until the first poll succeeds.
const DefaultValue = 20.0

const defaultPollTimeout = 15 * time.Second

// Fetcher returns a fresh reading in degrees Celsius.
type Fetcher interface {
	FetchTemperature(ctx context.Context) (float64, error)
}

type FetcherFunc func(ctx context.Context) (float64, error)

func (f FetcherFunc) FetchTemperature(ctx context.Context) (float64, error) { return f(ctx) }

type Option func(*Source)

// WithPollObserver is called after every poll with its outcome.
func WithPollObserver(fn func(v float64, err error)) Option {
	return func(s *Source) { s.observer = fn }
}

// WithPollTimeout bounds a single fetch.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Source) { s.timeout = d }
}

type Source struct {
	fetcher  Fetcher
	log      logr.Logger
	observer func(float64, error)
	timeout  time.Duration

	mu    sync.RWMutex
	value float64
	subs  []func(float64)

	cancel context.CancelFunc
}

func NewSource(f Fetcher, log logr.Logger, opts ...Option) *Source {
	s := &Source{
		fetcher: f,
		log:     log.WithName("temperature"),
		timeout: defaultPollTimeout,
		value:   DefaultValue,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start polls right away, then every interval, until Stop. Calling Start
// twice without Stop starts two loops; that is up to the caller.
func (s *Source) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("polling started", "interval", interval.String())
	go s.run(ctx, interval)
}

func (s *Source) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// Stop cancels future polls. A poll already in flight completes and its
// reading is still stored.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.log.Info("polling stopped")
	}
}

func (s *Source) CurrentValue() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribe registers fn for every change of the stored value.
func (s *Source) Subscribe(fn func(float64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// poll runs one fetch. Failures keep the previous value and are only
// logged; the next tick tries again.
func (s *Source) poll() {
	// Detached from the loop context so Stop does not abort a fetch.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	v, err := s.fetcher.FetchTemperature(ctx)
	if s.observer != nil {
		s.observer(v, err)
	}
	if err != nil {
		s.log.Error(err, "temperature poll failed")
		return
	}
	s.update(v)
}

func (s *Source) update(v float64) {
	s.mu.Lock()
	changed := v != s.value
	s.value = v
	subs := append([]func(float64){}, s.subs...)
	s.mu.Unlock()

	if !changed {
		return
	}
	s.log.V(1).Info("temperature changed", "value", v)
	for _, fn := range subs {
		fn(v)
	}
}
