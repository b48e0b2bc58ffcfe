// Package transport is the brokerless pub/sub and push/pull transport the
// relay loop, egress group, and worker runner all sit on top of. There is
// no ZeroMQ-equivalent library in this corpus, so transport builds the
// four socket roles spec.md §3/§4.5 needs (Pull, Push, Pub, Sub) directly
// on net.Conn, reusing internal/wireframe for message boundaries and
// internal/wireframe.Envelope for the more-frames bit.
//
// Endpoint addressing follows spec.md §6: "tcp://host:port", "unix://path"
// (and the "ipc://" alias), and "inproc://name" for same-process fan-in.
// inproc endpoints are served from a package-level registry keyed by name,
// backed by net.Pipe — the same pattern hayabusa-cloud-framer's own
// examples/pipe_test.go exercises for its in-memory framing pipe, extended
// here with a named registry instead of a single ad-hoc pair.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kjdev/zlmb/internal/wireframe"
)

// Scheme is the endpoint URI scheme.
type Scheme string

const (
	SchemeTCP    Scheme = "tcp"
	SchemeUnix   Scheme = "unix"
	SchemeInproc Scheme = "inproc"
)

// Endpoint is a parsed transport endpoint (spec.md §3: "A URI-shaped string
// naming a bind or connect target").
type Endpoint struct {
	Scheme Scheme
	Addr   string
}

// ErrInvalidEndpoint is returned by ParseEndpoint for a malformed or
// unsupported endpoint string.
var ErrInvalidEndpoint = errors.New("transport: invalid endpoint")

// ParseEndpoint parses a single endpoint string such as "tcp://127.0.0.1:5557",
// "unix:///tmp/zlmb.sock", "ipc:///tmp/zlmb.sock" (an alias for unix), or
// "inproc://relay-0".
func ParseEndpoint(s string) (Endpoint, error) {
	i := strings.Index(s, "://")
	if i < 0 {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}
	scheme, addr := s[:i], s[i+3:]
	if addr == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}
	switch scheme {
	case "tcp":
		return Endpoint{Scheme: SchemeTCP, Addr: addr}, nil
	case "unix", "ipc":
		return Endpoint{Scheme: SchemeUnix, Addr: addr}, nil
	case "inproc":
		return Endpoint{Scheme: SchemeInproc, Addr: addr}, nil
	default:
		return Endpoint{}, fmt.Errorf("%w: unknown scheme %q", ErrInvalidEndpoint, scheme)
	}
}

func (e Endpoint) network() string {
	switch e.Scheme {
	case SchemeTCP:
		return "tcp"
	case SchemeUnix:
		return "unix"
	default:
		return "inproc"
	}
}

func listen(e Endpoint) (net.Listener, error) {
	switch e.Scheme {
	case SchemeInproc:
		return inprocListen(e.Addr)
	default:
		return net.Listen(e.network(), e.Addr)
	}
}

func dial(ctx context.Context, e Endpoint) (net.Conn, error) {
	switch e.Scheme {
	case SchemeInproc:
		return inprocDial(ctx, e.Addr)
	default:
		var d net.Dialer
		return d.DialContext(ctx, e.network(), e.Addr)
	}
}

// frameOptions returns the wireframe.Option set matched to an endpoint's
// transport, reusing internal/wireframe's own transport-default table
// (internal/wireframe/netopts.go) rather than re-deriving byte order and
// protocol policy here.
func frameOptions(e Endpoint) []wireframe.Option {
	switch e.Scheme {
	case SchemeTCP:
		return []wireframe.Option{wireframe.WithReadTCP(), wireframe.WithWriteTCP()}
	case SchemeUnix:
		return []wireframe.Option{wireframe.WithReadUnix(), wireframe.WithWriteUnix()}
	default:
		return []wireframe.Option{wireframe.WithReadLocal(), wireframe.WithWriteLocal()}
	}
}

// maxFrameLen bounds a single frame's payload size on the wire. It is
// generous (16MiB) rather than configurable: spec.md does not call out a
// per-frame size limit as a tunable.
const maxFrameLen = 16 << 20

func newEnvelope(conn net.Conn, e Endpoint) *wireframe.Envelope {
	opts := frameOptions(e)
	r := wireframe.NewReader(conn, opts...)
	w := wireframe.NewWriter(conn, opts...)
	return wireframe.NewEnvelope(r, w)
}

// Frame is a re-export of wireframe.Frame so callers outside internal/wireframe
// (internal/relay, internal/worker, cmd/*) need not import it directly.
type Frame = wireframe.Frame

// Message is one complete multi-frame message accumulated from an ingress
// socket: an ordered, non-empty sequence of frames (spec.md §3).
type Message []Frame

// Payloads returns the frame payloads in order, discarding the more-frames
// bits. Nothing in this module calls it: the worker runner reads each
// frame's Payload field directly.
func (m Message) Payloads() [][]byte {
	out := make([][]byte, len(m))
	for i, fr := range m {
		out[i] = fr.Payload
	}
	return out
}

func writeMessage(env *wireframe.Envelope, msg Message) error {
	for _, fr := range msg {
		if err := env.WriteFrame(fr); err != nil {
			return err
		}
	}
	return nil
}

func readMessage(env *wireframe.Envelope) (Message, error) {
	var msg Message
	for {
		fr, err := env.ReadFrame(maxFrameLen)
		if err != nil {
			return msg, err
		}
		msg = append(msg, fr)
		if !fr.More {
			return msg, nil
		}
	}
}
