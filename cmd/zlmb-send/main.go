// Command zlmb-send is a minimal one-shot producer: it connects a PUSH
// socket to a single endpoint and sends its trailing arguments as one
// multi-frame message, one frame per argument (SPEC_FULL.md "Config & CLI":
// spec.md marks a full producer CLI out of scope, so this is kept to the
// shape app_client.c's argv-as-frames mode needs for manual testing).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kjdev/zlmb/internal/transport"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	var endpoint string
	app := &cli.App{
		Name:      "zlmb-send",
		Usage:     "send a one-shot multi-frame message to a PUSH front-end",
		ArgsUsage: "FRAME [FRAME ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "endpoint",
				Aliases:     []string{"e"},
				Value:       "tcp://127.0.0.1:5557",
				Destination: &endpoint,
			},
		},
		Action: func(ctx *cli.Context) error {
			frames := ctx.Args().Slice()
			if len(frames) == 0 {
				return fmt.Errorf("at least one FRAME argument is required")
			}
			return send(endpoint, frames)
		},
	}
	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, "zlmb-send:", err)
		return 1
	}
	return 0
}

func send(endpointStr string, frames []string) error {
	e, err := transport.ParseEndpoint(endpointStr)
	if err != nil {
		return err
	}
	push, err := transport.NewPushConnect("")
	if err != nil {
		return err
	}
	defer push.Close()
	// Connect synchronously, unlike NewPushConnect's async dial, so this
	// one-shot CLI never races Send against an in-flight connect.
	if err := push.Connect(context.Background(), e); err != nil {
		return fmt.Errorf("connect %s: %w", endpointStr, err)
	}

	msg := make(transport.Message, len(frames))
	for i, f := range frames {
		msg[i] = transport.Frame{Payload: []byte(f), More: i != len(frames)-1}
	}
	return push.Send(msg)
}
