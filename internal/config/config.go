// Package config loads the zlmb-server and zlmb-worker configuration
// surface (spec.md §6): CLI flags parsed with github.com/urfave/cli/v2,
// merged first-write-wins with an optional YAML document whose keys map
// 1:1 onto the CLI long option names.
//
// No corpus repo in this retrieval pack hand-rolls flag parsing or YAML
// decoding; every daemon-shaped program pulls in a flag library and
// gopkg.in/yaml.v3 (or an equivalent), so this package follows suit rather
// than reaching for the standard library's flag package.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/kjdev/zlmb/internal/mode"
	"github.com/kjdev/zlmb/internal/spool"
)

// ServerConfig is the merged zlmb-server configuration: every field
// mode.Config needs, plus the global flags spec.md §6 lists that sit
// outside the mode topology itself.
type ServerConfig struct {
	mode.Config

	ConfigFile string
	Info       bool
	Syslog     bool
	Verbose    bool

	// Compress selects the zstd codec in place of the default identity
	// codec (spec.md §9: "compression is a compile-time toggle in the
	// source" — mapped here onto a runtime flag, per the spec's own
	// guidance to parameterize compression as a runtime-injected codec).
	Compress bool
}

// yamlServerDoc mirrors the CLI long option names 1:1 (spec.md §6's YAML
// mapping rule), using sequence keys for the two comma-list options.
type yamlServerDoc struct {
	Mode                    string   `yaml:"mode"`
	ClientFrontendpoint     string   `yaml:"client_frontendpoint"`
	ClientBackendpoints     []string `yaml:"client_backendpoints"`
	ClientDumpfile          string   `yaml:"client_dumpfile"`
	ClientDumptype          string   `yaml:"client_dumptype"`
	PublishFrontendpoint    string   `yaml:"publish_frontendpoint"`
	PublishBackendpoint     string   `yaml:"publish_backendpoint"`
	PublishKey              string   `yaml:"publish_key"`
	PublishSendkey          bool     `yaml:"publish_sendkey"`
	SubscribeFrontendpoints []string `yaml:"subscribe_frontendpoints"`
	SubscribeBackendpoint   string   `yaml:"subscribe_backendpoint"`
	SubscribeKey            string   `yaml:"subscribe_key"`
	SubscribeDropkey        bool     `yaml:"subscribe_dropkey"`
	SubscribeDumpfile       string   `yaml:"subscribe_dumpfile"`
	SubscribeDumptype       string   `yaml:"subscribe_dumptype"`
	Syslog                  bool     `yaml:"syslog"`
	Verbose                 bool     `yaml:"verbose"`
	Compress                bool     `yaml:"compress"`
}

// LoadServer parses args (ordinarily os.Args) into a ServerConfig,
// applying the CLI flags first and then filling any field the CLI left
// unset from the --config YAML document, if one was named.
func LoadServer(args []string) (ServerConfig, error) {
	var cfg ServerConfig
	var modeStr, clientDumptype, subscribeDumptype string
	modeSet, clientDumptypeSet, subscribeDumptypeSet := false, false, false

	app := &cli.App{
		Name:  "zlmb-server",
		Usage: "brokerless message-broker relay",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "mode", Usage: "client|publish|subscribe|client-publish|publish-subscribe|client-subscribe|stand-alone", Destination: &modeStr},
			&cli.StringFlag{Name: "client_frontendpoint", Destination: &cfg.ClientFrontendpoint},
			&cli.StringFlag{Name: "client_backendpoints", Destination: &cfg.ClientBackendpoints},
			&cli.StringFlag{Name: "client_dumpfile", Destination: &cfg.ClientDumpfile},
			&cli.StringFlag{Name: "client_dumptype", Destination: &clientDumptype},
			&cli.StringFlag{Name: "publish_frontendpoint", Destination: &cfg.PublishFrontendpoint},
			&cli.StringFlag{Name: "publish_backendpoint", Destination: &cfg.PublishBackendpoint},
			&cli.StringFlag{Name: "publish_key", Destination: &cfg.PublishKey},
			&cli.BoolFlag{Name: "publish_sendkey", Destination: &cfg.PublishSendKey},
			&cli.StringFlag{Name: "subscribe_frontendpoints", Destination: &cfg.SubscribeFrontendpoints},
			&cli.StringFlag{Name: "subscribe_backendpoint", Destination: &cfg.SubscribeBackendpoint},
			&cli.StringFlag{Name: "subscribe_key", Destination: &cfg.SubscribeKey},
			&cli.BoolFlag{Name: "subscribe_dropkey", Destination: &cfg.SubscribeDropKey},
			&cli.StringFlag{Name: "subscribe_dumpfile", Destination: &cfg.SubscribeDumpfile},
			&cli.StringFlag{Name: "subscribe_dumptype", Destination: &subscribeDumptype},
			&cli.StringFlag{Name: "config", Destination: &cfg.ConfigFile},
			&cli.BoolFlag{Name: "info", Destination: &cfg.Info},
			&cli.BoolFlag{Name: "syslog", Destination: &cfg.Syslog},
			&cli.BoolFlag{Name: "verbose", Destination: &cfg.Verbose},
			&cli.BoolFlag{Name: "compress", Usage: "compress/decompress forwarded payloads with zstd", Destination: &cfg.Compress},
		},
		Action: func(ctx *cli.Context) error {
			modeSet = ctx.IsSet("mode")
			clientDumptypeSet = ctx.IsSet("client_dumptype")
			subscribeDumptypeSet = ctx.IsSet("subscribe_dumptype")
			return nil
		},
	}
	if err := app.Run(args); err != nil {
		return ServerConfig{}, fmt.Errorf("config: parse flags: %w", err)
	}

	if cfg.ConfigFile != "" {
		doc, err := readServerYAML(cfg.ConfigFile)
		if err != nil {
			return ServerConfig{}, err
		}
		if !modeSet && doc.Mode != "" {
			modeStr = doc.Mode
		}
		if cfg.ClientFrontendpoint == "" {
			cfg.ClientFrontendpoint = doc.ClientFrontendpoint
		}
		if cfg.ClientBackendpoints == "" && len(doc.ClientBackendpoints) > 0 {
			cfg.ClientBackendpoints = strings.Join(doc.ClientBackendpoints, ",")
		}
		if cfg.ClientDumpfile == "" {
			cfg.ClientDumpfile = doc.ClientDumpfile
		}
		if !clientDumptypeSet && doc.ClientDumptype != "" {
			clientDumptype = doc.ClientDumptype
		}
		if cfg.PublishFrontendpoint == "" {
			cfg.PublishFrontendpoint = doc.PublishFrontendpoint
		}
		if cfg.PublishBackendpoint == "" {
			cfg.PublishBackendpoint = doc.PublishBackendpoint
		}
		if cfg.PublishKey == "" {
			cfg.PublishKey = doc.PublishKey
		}
		if !cfg.PublishSendKey {
			cfg.PublishSendKey = doc.PublishSendkey
		}
		if cfg.SubscribeFrontendpoints == "" && len(doc.SubscribeFrontendpoints) > 0 {
			cfg.SubscribeFrontendpoints = strings.Join(doc.SubscribeFrontendpoints, ",")
		}
		if cfg.SubscribeBackendpoint == "" {
			cfg.SubscribeBackendpoint = doc.SubscribeBackendpoint
		}
		if cfg.SubscribeKey == "" {
			cfg.SubscribeKey = doc.SubscribeKey
		}
		if !cfg.SubscribeDropKey {
			cfg.SubscribeDropKey = doc.SubscribeDropkey
		}
		if cfg.SubscribeDumpfile == "" {
			cfg.SubscribeDumpfile = doc.SubscribeDumpfile
		}
		if !subscribeDumptypeSet && doc.SubscribeDumptype != "" {
			subscribeDumptype = doc.SubscribeDumptype
		}
		if !cfg.Syslog {
			cfg.Syslog = doc.Syslog
		}
		if !cfg.Verbose {
			cfg.Verbose = doc.Verbose
		}
		if !cfg.Compress {
			cfg.Compress = doc.Compress
		}
	}

	if modeStr == "" {
		return ServerConfig{}, fmt.Errorf("config: --mode is required")
	}
	m, err := mode.ParseMode(modeStr)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.Mode = m

	if clientDumptype != "" {
		t, err := spool.ParseDumpType(clientDumptype)
		if err != nil {
			return ServerConfig{}, err
		}
		cfg.ClientDumptype = t
	}
	if subscribeDumptype != "" {
		t, err := spool.ParseDumpType(subscribeDumptype)
		if err != nil {
			return ServerConfig{}, err
		}
		cfg.SubscribeDumptype = t
	}

	return cfg, nil
}

func readServerYAML(path string) (yamlServerDoc, error) {
	var doc yamlServerDoc
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}

// WorkerConfig is the merged zlmb-worker configuration (spec.md §6's
// worker CLI surface: "-e ENDPOINT", "-c COMMAND", "-t THREAD_COUNT",
// trailing args forwarded to the child).
type WorkerConfig struct {
	Endpoint string
	Command  string
	Threads  int
	Args     []string

	Syslog  bool
	Verbose bool
}

// LoadWorker parses args (ordinarily os.Args) into a WorkerConfig.
func LoadWorker(args []string) (WorkerConfig, error) {
	var cfg WorkerConfig
	app := &cli.App{
		Name:  "zlmb-worker",
		Usage: "spawns a child process per message pulled from ENDPOINT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Destination: &cfg.Endpoint},
			&cli.StringFlag{Name: "command", Aliases: []string{"c"}, Destination: &cfg.Command},
			&cli.IntFlag{Name: "thread", Aliases: []string{"t"}, Value: 1, Destination: &cfg.Threads},
			&cli.BoolFlag{Name: "syslog", Destination: &cfg.Syslog},
			&cli.BoolFlag{Name: "verbose", Destination: &cfg.Verbose},
		},
		Action: func(ctx *cli.Context) error {
			cfg.Args = ctx.Args().Slice()
			return nil
		},
	}
	if err := app.Run(args); err != nil {
		return WorkerConfig{}, fmt.Errorf("config: parse flags: %w", err)
	}
	if cfg.Endpoint == "" {
		return WorkerConfig{}, fmt.Errorf("config: --endpoint is required")
	}
	if cfg.Command == "" {
		return WorkerConfig{}, fmt.Errorf("config: --command is required")
	}
	return cfg, nil
}
