// Package mode implements the Mode Orchestrator (spec.md §4.5): it
// assembles the seven broker topologies from internal/transport,
// internal/egress, internal/spool, internal/codec, and internal/relay.
package mode

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kjdev/zlmb/internal/codec"
	"github.com/kjdev/zlmb/internal/egress"
	"github.com/kjdev/zlmb/internal/relay"
	"github.com/kjdev/zlmb/internal/spool"
	"github.com/kjdev/zlmb/internal/transport"
)

// Mode is one of the seven topologies spec.md §3/§4.5 define.
type Mode uint8

const (
	Client Mode = iota
	Publish
	Subscribe
	ClientPublish
	PublishSubscribe
	ClientSubscribe
	StandAlone
)

// ParseMode parses a --mode CLI/YAML value, including the three aliases
// spec.md §6 calls out as equivalent to a non-aliased mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "client":
		return Client, nil
	case "publish":
		return Publish, nil
	case "subscribe":
		return Subscribe, nil
	case "client-publish", "publish-client":
		return ClientPublish, nil
	case "publish-subscribe", "subscribe-publish":
		return PublishSubscribe, nil
	case "client-subscribe", "subscribe-client":
		return ClientSubscribe, nil
	case "stand-alone":
		return StandAlone, nil
	default:
		return 0, fmt.Errorf("mode: unknown mode %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Client:
		return "client"
	case Publish:
		return "publish"
	case Subscribe:
		return "subscribe"
	case ClientPublish:
		return "client-publish"
	case PublishSubscribe:
		return "publish-subscribe"
	case ClientSubscribe:
		return "client-subscribe"
	case StandAlone:
		return "stand-alone"
	default:
		return "unknown"
	}
}

// Config carries every CLI/YAML field spec.md §6 lists. Only the fields
// relevant to the selected Mode are read — spec.md's CLI surface defines
// one flag set shared across every mode, not a per-mode flag subset, so
// the Mode Orchestrator (not the config loader) decides which fields a
// given topology consumes. See DESIGN.md's "CLI/YAML field reuse across the
// seven mode topologies" note.
type Config struct {
	Mode Mode

	ClientFrontendpoint string
	ClientBackendpoints string
	ClientDumpfile      string
	ClientDumptype      spool.DumpType

	PublishFrontendpoint string
	PublishBackendpoint  string
	PublishKey           string
	PublishSendKey       bool

	SubscribeFrontendpoints string
	SubscribeBackendpoint   string
	SubscribeKey            string
	SubscribeDropKey        bool
	SubscribeDumpfile       string
	SubscribeDumptype       spool.DumpType

	Codec codec.Codec

	// Logger receives per-loop diagnostics (spool write failures, send
	// failures). The zero value is zerolog's no-op logger.
	Logger zerolog.Logger
}

func (c Config) codec() codec.Codec {
	if c.Codec == nil {
		return codec.Identity{}
	}
	return c.Codec
}

// closers collects teardown actions in construction order so Run can
// unwind them in reverse (spec.md §4.5 step 5).
type closers struct {
	fns []func()
}

func (c *closers) add(fn func()) { c.fns = append(c.fns, fn) }

func (c *closers) closeAll() {
	for i := len(c.fns) - 1; i >= 0; i-- {
		c.fns[i]()
	}
}

// Run assembles cfg.Mode's topology and runs it until ctx is cancelled,
// then tears every component down in reverse construction order (spec.md
// §4.5 steps 2-6). It returns once shutdown (including the relay loop(s)'
// garbage-collection drain) is complete.
func Run(ctx context.Context, cfg Config) error {
	switch cfg.Mode {
	case Client:
		return runClient(ctx, cfg)
	case Publish:
		return runPublish(ctx, cfg)
	case Subscribe:
		return runSubscribe(ctx, cfg)
	case ClientPublish:
		return runClientPublish(ctx, cfg)
	case PublishSubscribe:
		return runPublishSubscribe(ctx, cfg)
	case ClientSubscribe:
		return runClientSubscribe(ctx, cfg)
	case StandAlone:
		return runStandAlone(ctx, cfg)
	default:
		return fmt.Errorf("mode: unsupported mode %v", cfg.Mode)
	}
}

func openSpooler(path string, typ spool.DumpType, c codec.Codec) (*spool.Spooler, error) {
	if path == "" {
		return nil, nil
	}
	return spool.New(path, typ, c)
}

// runClient builds CLIENT: a pull-bind front-end proxied, via an inproc
// fan-in, into an Egress Group connected to ClientBackendpoints (spec.md
// §4.5's CLIENT row and its inproc fan-in paragraph).
//
// Adaptation note: spec.md phrases the fan-in as "the process binds a
// push-style egress to a well-known inproc endpoint" with the worker task
// connecting to it. internal/transport.Pull is bind-only (it is the
// fan-in/accept side), so the roles are swapped here without changing the
// decoupling this buys: the worker task's Pull binds the inproc endpoint,
// and the main proxy's Push connects to it. See DESIGN.md.
func runClient(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewPull(cfg.ClientFrontendpoint)
	if err != nil {
		return fmt.Errorf("mode: client front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	sp, err := openSpooler(cfg.ClientDumpfile, cfg.ClientDumptype, cfg.codec())
	if err != nil {
		return fmt.Errorf("mode: client dump: %w", err)
	}
	if sp != nil {
		cl.add(func() { sp.Close() })
	}

	grp, err := egress.New(cfg.ClientBackendpoints)
	if err != nil {
		return fmt.Errorf("mode: client backendpoints: %w", err)
	}
	cl.add(grp.Destroy)
	grp.StartMonitors(ctx)

	inprocEP := "inproc://zlmb-client-" + uuid.NewString()
	innerPull, err := transport.NewPull(inprocEP)
	if err != nil {
		return fmt.Errorf("mode: client inproc bind: %w", err)
	}
	cl.add(func() { innerPull.Close() })

	innerPush, err := transport.NewPushConnect(inprocEP)
	if err != nil {
		return fmt.Errorf("mode: client inproc connect: %w", err)
	}
	cl.add(func() { innerPush.Close() })

	workerLoop := relay.New(relay.Config{
		Logger:   cfg.Logger,
		Ingress:  innerPull,
		Egress:   grp.Push(),
		Liveness: grp,
		Spooler:  sp,
		Codec:    cfg.codec(),
		Role:     relay.RoleCompress,
	})
	mainLoop := relay.New(relay.Config{
		Logger:  cfg.Logger,
		Ingress: front,
		Egress:  innerPush,
		Role:    relay.RoleNone,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); workerLoop.Run(ctx) }()
	mainLoop.Run(ctx)
	wg.Wait()
	return nil
}

// runPublish builds PUBLISH: pull-bind front, pub-bind back, no dump, no
// compression (spec.md §4.5's PUBLISH row).
func runPublish(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewPull(cfg.PublishFrontendpoint)
	if err != nil {
		return fmt.Errorf("mode: publish front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	back, err := transport.NewPub(cfg.PublishBackendpoint)
	if err != nil {
		return fmt.Errorf("mode: publish back-end: %w", err)
	}
	cl.add(func() { back.Close() })

	loop := relay.New(relay.Config{
		Logger:         cfg.Logger,
		Ingress:        front,
		Egress:         back,
		PublishKey:     publishKeyBytes(cfg, false),
		SendPublishKey: cfg.PublishSendKey,
	})
	loop.Run(ctx)
	return nil
}

// runSubscribe builds SUBSCRIBE: sub-connect front (filtered by
// SubscribeKey), push-bind back, subscribe dump, decompress (spec.md
// §4.5's SUBSCRIBE row).
func runSubscribe(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewSub(cfg.SubscribeFrontendpoints, []byte(cfg.SubscribeKey))
	if err != nil {
		return fmt.Errorf("mode: subscribe front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	back, err := transport.NewPushBind(cfg.SubscribeBackendpoint)
	if err != nil {
		return fmt.Errorf("mode: subscribe back-end: %w", err)
	}
	cl.add(func() { back.Close() })

	sp, err := openSpooler(cfg.SubscribeDumpfile, cfg.SubscribeDumptype, cfg.codec())
	if err != nil {
		return fmt.Errorf("mode: subscribe dump: %w", err)
	}
	if sp != nil {
		cl.add(func() { sp.Close() })
	}

	loop := relay.New(relay.Config{
		Logger:  cfg.Logger,
		Ingress: front,
		Egress:  back,
		Spooler: sp,
		Codec:   cfg.codec(),
		Role:    relay.RoleDecompress,
		DropKey: cfg.SubscribeDropKey,
	})
	loop.Run(ctx)
	return nil
}

// runClientPublish builds CLIENT_PUBLISH: pull-bind front, pub-bind back,
// no dump, compress (spec.md §4.5's CLIENT_PUBLISH row).
func runClientPublish(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewPull(cfg.ClientFrontendpoint)
	if err != nil {
		return fmt.Errorf("mode: client-publish front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	back, err := transport.NewPub(cfg.PublishBackendpoint)
	if err != nil {
		return fmt.Errorf("mode: client-publish back-end: %w", err)
	}
	cl.add(func() { back.Close() })

	loop := relay.New(relay.Config{
		Logger:         cfg.Logger,
		Ingress:        front,
		Egress:         back,
		Codec:          cfg.codec(),
		Role:           relay.RoleCompress,
		PublishKey:     publishKeyBytes(cfg, true),
		SendPublishKey: cfg.PublishSendKey,
	})
	loop.Run(ctx)
	return nil
}

// runPublishSubscribe builds PUBLISH_SUBSCRIBE: pull-bind front, push-bind
// back, subscribe dump, decompress (spec.md §4.5's PUBLISH_SUBSCRIBE row).
func runPublishSubscribe(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewPull(cfg.ClientFrontendpoint)
	if err != nil {
		return fmt.Errorf("mode: publish-subscribe front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	back, err := transport.NewPushBind(cfg.SubscribeBackendpoint)
	if err != nil {
		return fmt.Errorf("mode: publish-subscribe back-end: %w", err)
	}
	cl.add(func() { back.Close() })

	sp, err := openSpooler(cfg.SubscribeDumpfile, cfg.SubscribeDumptype, cfg.codec())
	if err != nil {
		return fmt.Errorf("mode: publish-subscribe dump: %w", err)
	}
	if sp != nil {
		cl.add(func() { sp.Close() })
	}

	loop := relay.New(relay.Config{
		Logger:  cfg.Logger,
		Ingress: front,
		Egress:  back,
		Spooler: sp,
		Codec:   cfg.codec(),
		Role:    relay.RoleDecompress,
	})
	loop.Run(ctx)
	return nil
}

// runStandAlone builds STAND_ALONE: pull-bind front, push-bind back,
// subscribe dump, no compression (spec.md §4.5's STAND_ALONE row; scenario
// S1/S2).
func runStandAlone(ctx context.Context, cfg Config) error {
	var cl closers
	defer cl.closeAll()

	front, err := transport.NewPull(cfg.ClientFrontendpoint)
	if err != nil {
		return fmt.Errorf("mode: stand-alone front-end: %w", err)
	}
	cl.add(func() { front.Close() })

	back, err := transport.NewPushBind(cfg.SubscribeBackendpoint)
	if err != nil {
		return fmt.Errorf("mode: stand-alone back-end: %w", err)
	}
	cl.add(func() { back.Close() })

	sp, err := openSpooler(cfg.SubscribeDumpfile, cfg.SubscribeDumptype, cfg.codec())
	if err != nil {
		return fmt.Errorf("mode: stand-alone dump: %w", err)
	}
	if sp != nil {
		cl.add(func() { sp.Close() })
	}

	loop := relay.New(relay.Config{
		Logger:  cfg.Logger,
		Ingress: front,
		Egress:  back,
		Spooler: sp,
	})
	loop.Run(ctx)
	return nil
}

// runClientSubscribe builds CLIENT_SUBSCRIBE by running CLIENT's pipeline
// and SUBSCRIBE's pipeline concurrently in the same process, matching
// spec.md §4.5's CLIENT_SUBSCRIBE row (front: pull-bind + sub-connect;
// back: push-connect multi inproc fan-in + push-bind; dump: client +
// subscribe; compression: compress/decompress).
func runClientSubscribe(ctx context.Context, cfg Config) error {
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(2)
	go func() { defer wg.Done(); errs <- runClient(ctx, cfg) }()
	go func() { defer wg.Done(); errs <- runSubscribe(ctx, cfg) }()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// publishKeyBytes returns the publish key's wire bytes, run through the
// codec once and cached here at mode-construction time (spec.md §4.4:
// "optionally passed through the compression codec once at mode start and
// cached") when compress is true — i.e. only for modes whose pipeline role
// is RoleCompress. PUBLISH's own role is "none" (spec.md §4.5's table), so
// its key is always sent raw.
func publishKeyBytes(cfg Config, compress bool) []byte {
	if cfg.PublishKey == "" {
		return nil
	}
	if !compress {
		return []byte(cfg.PublishKey)
	}
	if out, err := cfg.codec().Compress([]byte(cfg.PublishKey)); err == nil {
		return out
	}
	return []byte(cfg.PublishKey)
}
