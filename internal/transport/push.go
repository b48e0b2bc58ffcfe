package transport

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/kjdev/zlmb/internal/endpoint"
	"github.com/kjdev/zlmb/internal/wireframe"
)

// ErrNoPeers is returned by Push.Send when no peer connection is currently
// available, which the relay loop treats as a transient send failure
// (spec.md §7: "divert the current message to the spooler; do not
// surface").
var ErrNoPeers = errors.New("transport: no connected push peers")

// Push is a PUSH-style egress socket: round-robin fan-out across its
// currently live peer connections (spec.md §4.3, §4.5 "push-connect
// (multi)"), or — in bind mode — fan-out across whichever peers have
// connected to it (§4.5's "push-bind" back role, used when the relay's
// back-end is the side external workers dial into).
type Push struct {
	mu     sync.Mutex
	peers  []*pushConn
	next   int
	events chan Event

	ln     net.Listener // set only in bind mode
	bindEP Endpoint

	closeOnce sync.Once
	closed    chan struct{}
}

type pushConn struct {
	conn net.Conn
	env  *wireframe.Envelope
}

// NewPushConnect dials every endpoint in a comma-separated list and returns
// a Push socket that round-robins Send across whichever of them are
// currently connected. Per-endpoint dial failures are not retried, and a
// peer that disconnects is not redialed.
func NewPushConnect(endpoints string) (*Push, error) {
	eps := endpoint.List(endpoints)
	p := &Push{
		events: make(chan Event, eventsCapacity),
		closed: make(chan struct{}),
	}
	for _, raw := range eps {
		e, err := ParseEndpoint(raw)
		if err != nil {
			p.Close()
			return nil, err
		}
		go p.connectOne(e)
	}
	return p, nil
}

// NewPushBind binds endpoint and fans out round-robin across whichever
// peers have connected to it.
func NewPushBind(endpoint string) (*Push, error) {
	e, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	ln, err := listen(e)
	if err != nil {
		return nil, err
	}
	p := &Push{
		events: make(chan Event, eventsCapacity),
		closed: make(chan struct{}),
		ln:     ln,
		bindEP: e,
	}
	go p.acceptLoop()
	return p, nil
}

func (p *Push) acceptLoop() {
	for {
		conn, err := p.ln.Accept()
		if err != nil {
			return
		}
		emit(p.events, Accepted)
		p.addPeer(conn, p.bindEP)
	}
}

func (p *Push) connectOne(e Endpoint) {
	conn, err := dial(context.Background(), e)
	if err != nil {
		return
	}
	emit(p.events, Connected)
	p.addPeer(conn, e)
}

func (p *Push) addPeer(conn net.Conn, e Endpoint) {
	pc := &pushConn{conn: conn, env: newEnvelope(conn, e)}
	p.mu.Lock()
	p.peers = append(p.peers, pc)
	p.mu.Unlock()
	go p.watchPeer(pc)
}

// watchPeer detects a peer hanging up even when Send is never called: a
// PUSH socket's peer never sends application data back, so any read
// returning an error (including EOF) means the connection is gone.
func (p *Push) watchPeer(pc *pushConn) {
	buf := make([]byte, 1)
	_, _ = pc.conn.Read(buf)
	p.removePeer(pc)
	emit(p.events, Disconnected)
}

func (p *Push) removePeer(pc *pushConn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cand := range p.peers {
		if cand == pc {
			p.peers = append(p.peers[:i], p.peers[i+1:]...)
			break
		}
	}
}

// Connect adds one already-resolved endpoint's connection synchronously and
// reports whether it connected. Used by internal/egress, which needs to
// know the outcome of each connect attempt rather than fire-and-forget.
func (p *Push) Connect(ctx context.Context, e Endpoint) error {
	conn, err := dial(ctx, e)
	if err != nil {
		return err
	}
	emit(p.events, Connected)
	p.addPeer(conn, e)
	return nil
}

// Send writes msg to the next live peer in round-robin order. It returns
// ErrNoPeers if there are currently no connected peers.
func (p *Push) Send(msg Message) error {
	p.mu.Lock()
	if len(p.peers) == 0 {
		p.mu.Unlock()
		return ErrNoPeers
	}
	pc := p.peers[p.next%len(p.peers)]
	p.next++
	p.mu.Unlock()

	if err := writeMessage(pc.env, msg); err != nil {
		p.removePeer(pc)
		pc.conn.Close()
		emit(p.events, Disconnected)
		return err
	}
	return nil
}

// Events returns the socket's monitor event channel.
func (p *Push) Events() <-chan Event { return p.events }

// Close tears down all peer connections and, in bind mode, stops accepting.
func (p *Push) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	p.mu.Lock()
	peers := p.peers
	p.peers = nil
	p.mu.Unlock()
	for _, pc := range peers {
		pc.conn.Close()
	}
	if p.ln != nil {
		return p.ln.Close()
	}
	return nil
}
