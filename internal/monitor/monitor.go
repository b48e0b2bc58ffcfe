// Package monitor implements the Socket Monitor (spec.md §4.2): a
// background task that drains a transport socket's event channel and
// maintains a "since last sample" bitmask the relay loop and egress group
// fold into their liveness accounting.
//
// Grounded on hayabusa-cloud-framer's own internal worker-task shape
// (a goroutine owning private state, signaled to stop via a close-only
// channel) generalized from framing to event accounting.
package monitor

import (
	"sync"

	"github.com/kjdev/zlmb/internal/transport"
)

// Mask is a bitset over transport.Connected / Accepted / Disconnected.
// Only those three event kinds are tracked (spec.md §3 Socket Monitor
// State); any other value passed to eventBit is ignored.
type Mask uint8

const (
	MaskConnected Mask = 1 << iota
	MaskAccepted
	MaskDisconnected
)

func eventBit(ev transport.Event) Mask {
	switch ev {
	case transport.Connected:
		return MaskConnected
	case transport.Accepted:
		return MaskAccepted
	case transport.Disconnected:
		return MaskDisconnected
	default:
		return 0
	}
}

// EventSource is the subset of a transport socket a Monitor needs: an
// event channel to drain. transport.Pull, transport.Push, transport.Pub,
// and transport.Sub all satisfy this.
type EventSource interface {
	Events() <-chan transport.Event
}

// Monitor runs a dedicated goroutine that blocks on a socket's event
// channel and folds every event into a shared, mutex-protected mask.
type Monitor struct {
	mu   sync.Mutex
	mask Mask

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	ready chan struct{} // closed once the monitor goroutine is running
}

// Start attaches a Monitor to src and begins draining its events
// immediately. Start waits on the Monitor's internal ready channel, which
// the goroutine closes once it holds the event channel, so draining has
// begun by the time Start returns, satisfying spec.md §4.2's startup synchronization
// requirement ("the monitor task has connected ... before the monitored
// socket begins operations") without the source's mutex-baton pattern
// (spec.md §9 redesign note): a closed channel is an explicit, race-free
// readiness signal a select can wait on.
func Start(src EventSource) *Monitor {
	m := &Monitor{
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		ready:   make(chan struct{}),
	}
	go m.run(src)
	<-m.ready
	return m
}

func (m *Monitor) run(src EventSource) {
	defer close(m.stopped)
	events := src.Events()
	close(m.ready)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.mu.Lock()
			m.mask |= eventBit(ev)
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Sample atomically reads the current mask and clears it (spec.md §4.2:
// "Atomically reads the current mask and clears it").
func (m *Monitor) Sample() Mask {
	m.mu.Lock()
	defer m.mu.Unlock()
	mask := m.mask
	m.mask = 0
	return mask
}

// Stop signals the monitor goroutine and blocks until it has returned.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.stopped
}
