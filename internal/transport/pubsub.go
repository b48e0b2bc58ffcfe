package transport

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/kjdev/zlmb/internal/endpoint"
	"github.com/kjdev/zlmb/internal/wireframe"
)

// Pub is a bind-side broadcast egress socket: every message Send writes to
// a Pub is delivered to every currently connected subscriber (spec.md §3
// publish role: "pub-bind"). Filtering is the subscriber's responsibility
// (Sub's prefix filter), not the publisher's.
type Pub struct {
	ln     net.Listener
	bindEP Endpoint

	mu    sync.Mutex
	peers map[net.Conn]*wireframe.Envelope

	events chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPub binds endpoint and returns a Pub socket.
func NewPub(endpoint string) (*Pub, error) {
	e, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	ln, err := listen(e)
	if err != nil {
		return nil, err
	}
	p := &Pub{
		ln:     ln,
		bindEP: e,
		peers:  make(map[net.Conn]*wireframe.Envelope),
		events: make(chan Event, eventsCapacity),
		closed: make(chan struct{}),
	}
	go p.acceptLoop()
	return p, nil
}

func (p *Pub) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		emit(p.events, Accepted)
		p.mu.Lock()
		p.peers[conn] = newEnvelope(conn, p.bindEP)
		p.mu.Unlock()
		go p.watch(conn)
	}
}

// watch detects peer disconnects by attempting to read from the
// connection: a PUB socket never expects inbound application data, so any
// read returning an error (including EOF) means the peer hung up.
func (p *Pub) watch(conn net.Conn) {
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	_ = err
	p.mu.Lock()
	delete(p.peers, conn)
	p.mu.Unlock()
	conn.Close()
	emit(p.events, Disconnected)
}

// Send broadcasts msg to every connected subscriber. A per-peer write
// failure drops that peer but does not fail the overall Send; the relay
// loop's liveness-based FORWARD/SPOOL decision, not individual peer
// failures, governs durability for the publish modes (spec.md §4.4).
func (p *Pub) Send(msg Message) error {
	p.mu.Lock()
	envs := make([]*wireframe.Envelope, 0, len(p.peers))
	conns := make([]net.Conn, 0, len(p.peers))
	for c, e := range p.peers {
		envs = append(envs, e)
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for i, env := range envs {
		if err := writeMessage(env, msg); err != nil {
			p.mu.Lock()
			delete(p.peers, conns[i])
			p.mu.Unlock()
			conns[i].Close()
		}
	}
	return nil
}

// Events returns the socket's monitor event channel.
func (p *Pub) Events() <-chan Event { return p.events }

// Addr returns the listener's bound address.
func (p *Pub) Addr() string { return p.ln.Addr().String() }

// Close stops accepting and drops every connected subscriber.
func (p *Pub) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	p.mu.Lock()
	conns := make([]net.Conn, 0, len(p.peers))
	for c := range p.peers {
		conns = append(conns, c)
	}
	p.peers = nil
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
	return p.ln.Close()
}

// Sub is a connect-side ingress socket for subscribe/client-subscribe
// modes: it dials one or more publish endpoints and merges their messages,
// applying a client-side prefix filter on each message's first frame
// (spec.md §4.2's "subscription key ... set as a filter on the SUB-style
// ingress").
type Sub struct {
	filter   []byte
	messages chan Message
	events   chan Event

	closeOnce sync.Once
	closed    chan struct{}
}

// NewSub dials every endpoint in a comma-separated list and returns a Sub
// socket filtering on filter (nil or empty means "accept everything").
func NewSub(endpoints string, filter []byte) (*Sub, error) {
	eps := endpoint.List(endpoints)
	s := &Sub{
		filter:   filter,
		messages: make(chan Message, eventsCapacity),
		events:   make(chan Event, eventsCapacity),
		closed:   make(chan struct{}),
	}
	for _, raw := range eps {
		e, err := ParseEndpoint(raw)
		if err != nil {
			s.Close()
			return nil, err
		}
		go s.connectOne(e)
	}
	return s, nil
}

func (s *Sub) connectOne(e Endpoint) {
	conn, err := dial(context.Background(), e)
	if err != nil {
		return
	}
	emit(s.events, Connected)
	env := newEnvelope(conn, e)
	defer conn.Close()
	for {
		msg, err := readMessage(env)
		if err != nil {
			emit(s.events, Disconnected)
			return
		}
		if !s.accepts(msg) {
			continue
		}
		select {
		case s.messages <- msg:
		case <-s.closed:
			return
		}
	}
}

func (s *Sub) accepts(msg Message) bool {
	if len(s.filter) == 0 {
		return true
	}
	if len(msg) == 0 {
		return false
	}
	return bytes.HasPrefix(msg[0].Payload, s.filter)
}

// Recv blocks for one complete, filter-accepted multi-frame message.
func (s *Sub) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-s.messages:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, net.ErrClosed
	}
}

// Events returns the socket's monitor event channel.
func (s *Sub) Events() <-chan Event { return s.events }

// Close unblocks any pending Recv and stops delivery of further messages.
// It does not close the peer connections itself; each one is closed by its
// reader goroutine when that goroutine returns.
func (s *Sub) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}
