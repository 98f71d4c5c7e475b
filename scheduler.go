package main

// Two mechanisms drive timed transitions: a one-shot deferred action per
// deadline, and the Hub's coarse tick, which rebroadcasts remaining time
// and performs any overdue transition itself. The redundancy tolerates
// timer jitter; generations keep a transition from executing twice.

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type deferredKind int

const (
	deferLockin deferredKind = iota
	deferReveal
	deferIdle
)

func (k deferredKind) String() string {
	switch k {
	case deferLockin:
		return "lockin"
	case deferReveal:
		return "reveal"
	case deferIdle:
		return "idle"
	}
	return "unknown"
}

// timerEvent is delivered into the Hub loop when a deferred action fires.
// The generation lets the loop discard fires that were superseded.
type timerEvent struct {
	kind deferredKind
	gen  uint64
}

type armedAction struct {
	timer    clockwork.Timer
	gen      uint64
	deadline time.Time
	cancel   chan struct{}
}

// scheduler owns the one-shot deferred actions. All of its methods are
// called only from the Hub event loop, so it needs no locking; the
// goroutine waiting on each timer touches nothing but its own channels.
type scheduler struct {
	clock clockwork.Clock
	fires chan timerEvent
	gen   uint64
	armed map[deferredKind]*armedAction
}

func newScheduler(clock clockwork.Clock) *scheduler {
	return &scheduler{
		clock: clock,
		fires: make(chan timerEvent, 8),
		armed: make(map[deferredKind]*armedAction),
	}
}

// arm schedules a deferred action, replacing any pending one of the same
// kind.
func (s *scheduler) arm(kind deferredKind, d time.Duration) {
	s.cancel(kind)

	s.gen++
	action := &armedAction{
		timer:    s.clock.NewTimer(d),
		gen:      s.gen,
		deadline: s.clock.Now().Add(d),
		cancel:   make(chan struct{}),
	}
	s.armed[kind] = action

	go func() {
		select {
		case <-action.timer.Chan():
			s.fires <- timerEvent{kind: kind, gen: action.gen}
		case <-action.cancel:
			stopAndDrainTimer(action.timer)
		}
	}()
}

// cancel is idempotent; cancelling an unarmed kind is a no-op.
func (s *scheduler) cancel(kind deferredKind) {
	action, ok := s.armed[kind]
	if !ok {
		return
	}
	close(action.cancel)
	delete(s.armed, kind)
}

func (s *scheduler) cancelAll() {
	for kind := range s.armed {
		s.cancel(kind)
	}
}

// claim reports whether a fired event is still current, and if so
// disarms it. A stale fire (superseded by cancel or re-arm) is discarded.
func (s *scheduler) claim(ev timerEvent) bool {
	action, ok := s.armed[ev.kind]
	if !ok || action.gen != ev.gen {
		return false
	}
	delete(s.armed, ev.kind)
	return true
}

func (s *scheduler) pending(kind deferredKind) bool {
	_, ok := s.armed[kind]
	return ok
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine never leaks a buffered fire.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
