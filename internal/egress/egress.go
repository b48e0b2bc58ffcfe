// Package egress implements the Egress Group (spec.md §4.3): a PUSH-style
// outbound built from a comma-separated endpoint list, owning one monitor
// per endpoint and a liveness counter the relay loop uses to choose
// FORWARD vs. SPOOL.
package egress

import (
	"context"
	"sync"

	"github.com/kjdev/zlmb/internal/endpoint"
	"github.com/kjdev/zlmb/internal/monitor"
	"github.com/kjdev/zlmb/internal/transport"
)

type entry struct {
	ep transport.Endpoint
	m  *monitor.Monitor
}

// Group is a set of outbound peer connections sharing one round-robin
// transport.Push and one monitor per configured endpoint.
type Group struct {
	push *transport.Push

	mu      sync.Mutex
	entries []*entry

	liveness int
}

// New parses endpoints (a comma-separated list, spec.md §3) and allocates
// a Push socket plus one entry per endpoint. No monitors are started and no
// connections are made yet; call StartMonitors for both.
func New(endpoints string) (*Group, error) {
	eps := endpoint.List(endpoints)
	push, err := transport.NewPushConnect("")
	if err != nil {
		return nil, err
	}
	g := &Group{push: push}
	for _, raw := range eps {
		e, err := transport.ParseEndpoint(raw)
		if err != nil {
			g.Destroy()
			return nil, err
		}
		g.entries = append(g.entries, &entry{ep: e})
	}
	return g, nil
}

// Push returns the underlying round-robin send socket the relay loop sends
// frames through.
func (g *Group) Push() *transport.Push { return g.push }

// StartMonitors starts each endpoint's monitor, then issues the initial
// connect for every endpoint. The monitor is guaranteed attached (per
// monitor.Start's readiness contract) before the connect is attempted, so
// no connect-time event is lost (spec.md §4.3: "The connect step is
// ordered after the monitor task has attached").
func (g *Group) StartMonitors(ctx context.Context) {
	for _, e := range g.entries {
		e.m = monitor.Start(g.push)
		go func(e *entry) {
			_ = g.push.Connect(ctx, e.ep)
		}(e)
	}
}

// Sample folds every entry's monitor mask into the liveness count: a
// CONNECTED or ACCEPTED bit increments it, a DISCONNECTED bit decrements
// it, each applied exactly once per sample (spec.md §4.3). Sample is
// intended to be called by the relay loop only, which owns liveness_count
// single-threaded (spec.md §5); it takes Group's own mutex only to protect
// the entries slice against concurrent StopMonitors/Destroy.
func (g *Group) Sample() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.entries {
		if e.m == nil {
			continue
		}
		mask := e.m.Sample()
		if mask&(monitor.MaskConnected|monitor.MaskAccepted) != 0 {
			g.liveness++
		}
		if mask&monitor.MaskDisconnected != 0 {
			g.liveness--
			if g.liveness < 0 {
				g.liveness = 0
			}
		}
	}
	return g.liveness
}

// Liveness returns the last value Sample computed without re-sampling.
func (g *Group) Liveness() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.liveness
}

// StopMonitors signals and joins every entry's monitor goroutine.
func (g *Group) StopMonitors() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.entries {
		if e.m != nil {
			e.m.Stop()
		}
	}
}

// Destroy stops every monitor and closes the underlying Push socket.
func (g *Group) Destroy() {
	g.StopMonitors()
	if g.push != nil {
		g.push.Close()
	}
}
