// Command zlmb-server runs the relay engine in one of the seven broker
// topologies spec.md §3/§4.5 defines (--mode), driven by CLI flags merged
// with an optional --config YAML file (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kjdev/zlmb/internal/codec"
	"github.com/kjdev/zlmb/internal/config"
	"github.com/kjdev/zlmb/internal/mode"
	"github.com/kjdev/zlmb/internal/zlog"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	cfg, err := config.LoadServer(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zlmb-server:", err)
		return 1
	}

	log := zlog.New("zlmb-server", cfg.Verbose, cfg.Syslog)
	if cfg.Info {
		log.Info().Str("mode", cfg.Mode.String()).Msg("zlmb-server starting")
	}

	if cfg.Compress {
		z, err := codec.NewZstd()
		if err != nil {
			log.Error().Err(err).Msg("zlmb-server: zstd init failed")
			return 1
		}
		defer z.Close()
		cfg.Config.Codec = z
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Config.Logger = log
	if err := mode.Run(ctx, cfg.Config); err != nil {
		log.Error().Err(err).Msg("zlmb-server: mode run failed")
		return 1
	}
	return 0
}
