// Package relay implements the Relay Loop (spec.md §4.4): the poll-driven
// forwarding state machine sitting between an ingress socket, an egress
// socket, and an optional dump spooler.
//
// New code: the FORWARD / SPOOL / FORWARD_FAILED_FALLBACK_SPOOL decision
// spec.md §4.4 requires has no teacher analogue, since the ingress and
// egress here are independent internal/transport sockets rather than the
// single tied src/dst pair hayabusa-cloud-framer's Forwarder relays.
package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kjdev/zlmb/internal/codec"
	"github.com/kjdev/zlmb/internal/spool"
	"github.com/kjdev/zlmb/internal/transport"
)

// Ingress is the subset of a front-end socket the relay loop needs to pull
// one complete multi-frame message.
type Ingress interface {
	Recv(ctx context.Context) (transport.Message, error)
}

// Egress is the subset of a back-end socket the relay loop needs to send
// one message (ordinarily one frame at a time, to preserve the per-frame
// FORWARD/SPOOL transition spec.md §4.4 describes).
type Egress interface {
	Send(msg transport.Message) error
}

// LivenessSampler reports the current egress liveness count (spec.md §4.3).
// A nil LivenessSampler means "always forward" — used for modes like
// PUBLISH, whose pub-bind back-end accepts any number of subscribers and
// has no liveness-gated spool fallback.
type LivenessSampler interface {
	Sample() int
}

// CompressionRole selects which direction, if any, of the compression
// codec a Loop applies to forwarded payloads (spec.md §4.4 step 2c).
type CompressionRole uint8

const (
	RoleNone CompressionRole = iota
	RoleCompress
	RoleDecompress
)

// state is the per-message FORWARD/SPOOL state machine (spec.md §4.4).
type state uint8

const (
	stateForward state = iota
	stateSpool
	stateForwardFailedFallbackSpool
)

// Config assembles one Loop. Spooler, Codec, PublishKey, and the key flags
// are all optional; their zero values reproduce the simplest mode
// (STAND_ALONE's "none" compression role, no publish/subscribe key).
type Config struct {
	Ingress  Ingress
	Egress   Egress
	Liveness LivenessSampler
	Spooler  *spool.Spooler
	Codec    codec.Codec
	Role     CompressionRole

	// PublishKey, pre-run through Codec once by the caller if desired
	// (spec.md §4.4: "optionally passed through the compression codec
	// once at mode start and cached"), is prepended as a synthetic frame
	// to every outgoing message when SendPublishKey is true.
	PublishKey     []byte
	SendPublishKey bool

	// DropKey discards the first frame of every ingress message before
	// forwarding (spec.md §4.4 subscribe key handling).
	DropKey bool

	// PollTimeout bounds each ingress poll (spec.md §4.4: "≈500 ms").
	PollTimeout time.Duration

	// Logger receives spool write failures (spec.md §7: "write failure →
	// log ERR and continue"). The zero value is zerolog's no-op logger.
	Logger zerolog.Logger
}

// Loop is one running relay: one ingress, one egress, one optional
// spooler.
type Loop struct {
	cfg Config
}

// New validates cfg and returns a Loop ready to Run.
func New(cfg Config) *Loop {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 500 * time.Millisecond
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Identity{}
	}
	return &Loop{cfg: cfg}
}

// Run drains messages from the ingress until ctx is cancelled. On
// cancellation it performs the shutdown garbage-collection pass (spec.md
// §4.4 "Shutdown"): draining any remaining buffered ingress frames to the
// spooler with a bounded poll timeout, then returns.
func (l *Loop) Run(ctx context.Context) {
	for {
		msg, err := l.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.drain()
				return
			}
			continue // poll timeout with no message ready
		}
		l.forwardOrSpool(msg)
	}
}

func (l *Loop) poll(ctx context.Context) (transport.Message, error) {
	pctx, cancel := context.WithTimeout(ctx, l.cfg.PollTimeout)
	defer cancel()
	return l.cfg.Ingress.Recv(pctx)
}

// drain repeatedly polls the ingress with the same bounded timeout until
// two consecutive polls come back empty, spooling everything it reads.
// Used only at shutdown; by then the egress side is assumed gone, so every
// drained message is unconditionally spooled.
func (l *Loop) drain() {
	if l.cfg.Spooler == nil {
		return
	}
	misses := 0
	for misses < 2 {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.PollTimeout)
		msg, err := l.cfg.Ingress.Recv(ctx)
		cancel()
		if err != nil {
			misses++
			continue
		}
		misses = 0
		l.spoolMessage(applyDropKey(msg, l.cfg.DropKey))
	}
}

// forwardOrSpool implements spec.md §4.4's per-message procedure.
func (l *Loop) forwardOrSpool(msg transport.Message) {
	live := l.cfg.Liveness == nil || l.cfg.Liveness.Sample() > 0

	frames := applyDropKey(msg, l.cfg.DropKey)
	frames, keyFrames := l.applyPublishKey(frames)

	st := stateSpool
	if live {
		st = stateForward
	}

	for i, fr := range frames {
		// The cached publish-key frame was already run through the
		// codec once at mode start (spec.md §4.4: "passed through the
		// compression codec once... and cached"); sendOne must not
		// compress it again.
		precompressed := i < keyFrames
		switch st {
		case stateForward:
			if err := l.sendOne(fr, precompressed); err != nil {
				l.cfg.Logger.Debug().Err(err).Msg("relay: send failed, diverting to spooler")
				if l.cfg.Spooler != nil {
					l.writeSpool(fr)
					st = stateForwardFailedFallbackSpool
				}
			}
		case stateSpool, stateForwardFailedFallbackSpool:
			if l.cfg.Spooler != nil {
				l.writeSpool(fr)
			}
		}
	}
}

func (l *Loop) sendOne(fr transport.Frame, precompressed bool) error {
	payload := fr.Payload
	if !precompressed {
		switch l.cfg.Role {
		case RoleCompress:
			if out, err := l.cfg.Codec.Compress(payload); err == nil {
				payload = out
			}
		case RoleDecompress:
			if l.cfg.Codec.Valid(payload) {
				if out, ok := l.cfg.Codec.Decompress(payload); ok {
					payload = out
				}
			}
		}
	}
	return l.cfg.Egress.Send(transport.Message{{Payload: payload, More: fr.More}})
}

func (l *Loop) spoolMessage(frames []transport.Frame) {
	if l.cfg.Spooler == nil {
		return
	}
	for _, fr := range frames {
		l.writeSpool(fr)
	}
}

// writeSpool writes one frame to the spooler, logging (not surfacing) a
// write failure per spec.md §7: "write failure → log ERR and continue
// (message is lost)".
func (l *Loop) writeSpool(fr transport.Frame) {
	if err := l.cfg.Spooler.Write(fr.Payload, fr.More); err != nil {
		l.cfg.Logger.Error().Err(err).Msg("relay: spool write failed, message lost")
	}
}

// applyPublishKey prepends the cached publish-key frame, if configured, and
// reports how many leading frames of the result are that prepended key (0
// or 1) so the caller can skip re-compressing it.
func (l *Loop) applyPublishKey(frames []transport.Frame) ([]transport.Frame, int) {
	if !l.cfg.SendPublishKey || len(l.cfg.PublishKey) == 0 || len(frames) == 0 {
		return frames, 0
	}
	out := make([]transport.Frame, 0, len(frames)+1)
	out = append(out, transport.Frame{Payload: l.cfg.PublishKey, More: true})
	out = append(out, frames...)
	return out, 1
}

func applyDropKey(msg transport.Message, drop bool) []transport.Frame {
	if !drop || len(msg) == 0 {
		return []transport.Frame(msg)
	}
	return []transport.Frame(msg)[1:]
}
