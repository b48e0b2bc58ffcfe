// Command zlmb-worker pulls complete multi-frame messages from a front-end
// endpoint and spawns a configured child process per message (spec.md
// §4.6), forwarding ZLMB_FRAME/ZLMB_FRAME_LENGTH/ZLMB_LENGTH via the
// child's environment and the concatenated frame payloads via its stdin.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjdev/zlmb/internal/config"
	"github.com/kjdev/zlmb/internal/transport"
	"github.com/kjdev/zlmb/internal/worker"
	"github.com/kjdev/zlmb/internal/zlog"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	cfg, err := config.LoadWorker(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zlmb-worker:", err)
		return 1
	}

	log := zlog.New("zlmb-worker", cfg.Verbose, cfg.Syslog)

	front, err := transport.NewPull(cfg.Endpoint)
	if err != nil {
		log.Error().Err(err).Msg("zlmb-worker: bind front-end")
		return 1
	}
	defer front.Close()

	r := worker.New(front, worker.Config{
		Command: cfg.Command,
		Args:    cfg.Args,
		Threads: cfg.Threads,
		Logger:  log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := r.Run(ctx); err != nil {
		log.Error().Err(err).Msg("zlmb-worker: run failed")
		return 1
	}
	return 0
}
