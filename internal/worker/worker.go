// Package worker implements the Worker Runner (spec.md §4.6): a pool of
// command threads pulling complete multi-frame messages from one shared
// Ingress (cmd/zlmb-worker hands every thread the same bound Pull socket;
// no inproc fan-in or proxy sits in between) and spawning a configured
// child process per message, with
// frame accounting exposed through the environment the way app_worker.c's
// _spawn_generate_environ does.
//
// Grounded on hayabusa-cloud-framer/forward.go's buffer-reuse pattern for
// accumulating frame bytes ahead of a single write; child process handling
// itself is new code built directly on os/exec, matching the corpus's
// preference (e.g. rockstar-0000-aistore/tools/node.go) for a thin
// exec.Cmd wrapper over a process-management library.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kjdev/zlmb/internal/transport"
)

// Ingress is the subset of a front-end socket a Runner pulls messages from.
type Ingress interface {
	Recv(ctx context.Context) (transport.Message, error)
}

// Config configures a Runner.
type Config struct {
	// Command is the child executable (resolved via exec.LookPath's PATH
	// search semantics, matching the original's posix_spawnp).
	Command string

	// Args are extra arguments appended after Command, mirroring the
	// "zlmb-worker -c CMD -- ARGS..." CLI surface (spec.md §6).
	Args []string

	// Threads is the number of concurrent command threads pulling from
	// Ingress (spec.md §4.6 "-t, --thread"). Defaults to 1.
	Threads int

	Logger zerolog.Logger
}

// Runner is the Worker Runner: Threads goroutines, each looping
// Recv -> spawn -> wait against a shared Ingress.
type Runner struct {
	cfg Config
	in  Ingress
}

// New builds a Runner pulling messages from in.
func New(in Ingress, cfg Config) *Runner {
	if cfg.Threads <= 0 {
		cfg.Threads = 1
	}
	return &Runner{cfg: cfg, in: in}
}

// Run starts cfg.Threads command threads and blocks until ctx is
// cancelled and every thread has returned. A child still running when ctx
// is cancelled is killed (exec.CommandContext) and then reaped.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(r.cfg.Threads)
	for i := 0; i < r.cfg.Threads; i++ {
		go func(id int) {
			defer wg.Done()
			r.commandThread(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (r *Runner) commandThread(ctx context.Context, id int) {
	log := r.cfg.Logger.With().Int("thread", id).Logger()
	for {
		msg, err := r.in.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("worker: recv")
			continue
		}
		if err := r.spawn(ctx, msg); err != nil {
			log.Error().Err(err).Msg("worker: spawn")
		}
	}
}

// environ computes ZLMB_FRAME, ZLMB_FRAME_LENGTH, and ZLMB_LENGTH the way
// app_worker.c's _spawn_generate_environ does: frame count, a
// colon-separated list of per-frame payload sizes, and the total payload
// length across every frame.
func environ(msg transport.Message) []string {
	frameLengths := make([]string, len(msg))
	total := 0
	for i, fr := range msg {
		frameLengths[i] = strconv.Itoa(len(fr.Payload))
		total += len(fr.Payload)
	}
	return []string{
		"ZLMB_FRAME=" + strconv.Itoa(len(msg)),
		"ZLMB_FRAME_LENGTH=" + strings.Join(frameLengths, ":"),
		"ZLMB_LENGTH=" + strconv.Itoa(total),
	}
}

// spawn runs cfg.Command once for msg: its environment carries the frame
// accounting variables, its stdin carries the concatenated frame payloads
// in order, and its exit is waited on before spawn returns (matching the
// original's waitpid call, so a slow child throttles its own command
// thread rather than piling up concurrent children).
func (r *Runner) spawn(ctx context.Context, msg transport.Message) error {
	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	// Exactly ZLMB_FRAME, ZLMB_FRAME_LENGTH, ZLMB_LENGTH — no parent
	// environment leaks through (spec.md §4.6 step 3, §6; app_worker.c's
	// _spawn_run passes only { frame, frame_length, length, NULL }).
	cmd.Env = environ(msg)

	var buf bytes.Buffer
	for _, fr := range msg {
		buf.Write(fr.Payload)
	}
	cmd.Stdin = &buf

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			r.cfg.Logger.Warn().
				Str("command", r.cfg.Command).
				Str("stderr", stderr.String()).
				Err(err).
				Msg("worker: command exited non-zero")
			return nil
		}
		return fmt.Errorf("worker: run %s: %w", r.cfg.Command, err)
	}
	return nil
}
