package temperature

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

// scripted returns the given readings in order, then repeats the last.
type scripted struct {
	mu    sync.Mutex
	steps []step
	calls int
}

type step struct {
	v   float64
	err error
}

func (f *scripted) FetchTemperature(_ context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.steps[min(f.calls, len(f.steps)-1)]
	f.calls++
	return s.v, s.err
}

func (f *scripted) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCurrentValueDefault(t *testing.T) {
	s := NewSource(&scripted{steps: []step{{v: 1}}}, logr.Discard())
	if got := s.CurrentValue(); got != DefaultValue {
		t.Fatalf("expected default %v, got %v", DefaultValue, got)
	}
}

func TestNotifiesOnlyOnChange(t *testing.T) {
	f := &scripted{steps: []step{{v: 21.0}, {v: 21.0}, {v: 22.5}, {v: 22.5}}}
	s := NewSource(f, logr.Discard())

	var got []float64
	s.Subscribe(func(v float64) { got = append(got, v) })

	for range 4 {
		s.poll()
	}

	if len(got) != 2 || got[0] != 21.0 || got[1] != 22.5 {
		t.Fatalf("expected notifications [21 22.5], got %v", got)
	}
	if s.CurrentValue() != 22.5 {
		t.Fatalf("expected current 22.5, got %v", s.CurrentValue())
	}
}

func TestFirstReadingEqualToDefaultIsSilent(t *testing.T) {
	s := NewSource(&scripted{steps: []step{{v: DefaultValue}}}, logr.Discard())
	notified := false
	s.Subscribe(func(float64) { notified = true })
	s.poll()
	if notified {
		t.Fatal("no change from the default must not notify")
	}
}

func TestFailedPollKeepsValue(t *testing.T) {
	f := &scripted{steps: []step{{v: 18}, {err: errors.New("timeout")}, {v: 19}}}
	var outcomes []error
	s := NewSource(f, logr.Discard(), WithPollObserver(func(_ float64, err error) {
		outcomes = append(outcomes, err)
	}))

	s.poll()
	s.poll()
	if s.CurrentValue() != 18 {
		t.Fatalf("expected previous value kept, got %v", s.CurrentValue())
	}
	s.poll()
	if s.CurrentValue() != 19 {
		t.Fatalf("expected next poll to proceed, got %v", s.CurrentValue())
	}
	if len(outcomes) != 3 || outcomes[0] != nil || outcomes[1] == nil || outcomes[2] != nil {
		t.Fatalf("unexpected poll outcomes %v", outcomes)
	}
}

func TestStartPollsImmediately(t *testing.T) {
	f := &scripted{steps: []step{{v: 23}}}
	s := NewSource(f, logr.Discard())

	changed := make(chan float64, 1)
	s.Subscribe(func(v float64) { changed <- v })

	s.Start(time.Hour)
	defer s.Stop()

	select {
	case v := <-changed:
		if v != 23 {
			t.Fatalf("expected 23, got %v", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first poll did not fire before the interval")
	}
}

func TestStopHaltsPolling(t *testing.T) {
	f := &scripted{steps: []step{{v: 1}, {v: 2}, {v: 3}}}
	s := NewSource(f, logr.Discard())

	s.Start(10 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	s.Stop()
	time.Sleep(20 * time.Millisecond)
	n := f.Calls()
	time.Sleep(50 * time.Millisecond)
	if f.Calls() != n {
		t.Fatalf("polling continued after Stop: %d -> %d", n, f.Calls())
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSource(&scripted{steps: []step{{v: 1}}}, logr.Discard())
	s.Stop()
	s.Stop()
}

func TestInFlightPollAppliedAfterStop(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := FetcherFunc(func(ctx context.Context) (float64, error) {
		close(started)
		<-release
		return 30, ctx.Err()
	})
	s := NewSource(f, logr.Discard())

	done := make(chan struct{})
	s.Subscribe(func(float64) { close(done) })

	s.Start(time.Hour)
	<-started
	s.Stop()
	close(release)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight result was dropped")
	}
	if s.CurrentValue() != 30 {
		t.Fatalf("expected 30, got %v", s.CurrentValue())
	}
}
