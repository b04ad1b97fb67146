package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wtask/relay/internal/config"
	"github.com/wtask/relay/internal/logging"
	"github.com/wtask/relay/pkg/semver"
)

type options struct {
	configPath   string
	addr         string
	interval     time.Duration
	writeTimeout time.Duration
	maxSessions  int
	httpAddr     string
	logLevel     string
	logFormat    string
}

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// Version - app version fingerprint, may be overwritten with -ldflags "-X main.Version=..."
	Version = "1.0.0"

	// Flags - command line options, applied over loaded configuration only if set explicitly
	Flags = options{}
)

func init() {
	Version = semver.MustParse(Version).String()

	out := flag.CommandLine.Output()
	printUsage := func() {
		fmt.Fprintf(out, "Launch tick-batched text relay server over TCP\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		flag.PrintDefaults()
		fmt.Fprint(out, "\n")
	}
	printError := func(msg string) {
		fmt.Fprintf(out, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, msg)
	}

	defaults := config.Default()
	help, version := false, false
	flag.BoolVar(&help, "help", false, "Print usage help")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.StringVar(&Flags.configPath, "config", "", "Path to YAML configuration file")
	flag.StringVar(&Flags.addr, "addr", defaults.Addr, "TCP listen address")
	flag.DurationVar(&Flags.interval, "interval", defaults.BroadcastInterval, "Broadcast period")
	flag.DurationVar(&Flags.writeTimeout, "write-timeout", defaults.WriteTimeout, "Write deadline per client, 0 disables it")
	flag.IntVar(&Flags.maxSessions, "max-sessions", defaults.MaxSessions, "Max concurrent clients, 0 is unbounded")
	flag.StringVar(&Flags.httpAddr, "http", defaults.HTTPAddr, "Address of health, metrics and WebSocket endpoint, empty disables it")
	flag.StringVar(&Flags.logLevel, "log-level", defaults.LogLevel, "Log level: "+strings.Join(logging.Levels, ", "))
	flag.StringVar(&Flags.logFormat, "log-format", defaults.LogFormat, "Log format: "+strings.Join(logging.Formats, ", "))

	flag.Parse()

	if help {
		printUsage()
		os.Exit(0)
	}
	if version {
		fmt.Fprintf(out, "%s v%s\n", BinaryName, Version)
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		printError("unexpected arguments: " + strings.Join(flag.Args(), " "))
		os.Exit(1)
	}
}

// apply - overwrites cfg with flags which were set on command line.
func (o options) apply(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = o.addr
		case "interval":
			cfg.BroadcastInterval = o.interval
		case "write-timeout":
			cfg.WriteTimeout = o.writeTimeout
		case "max-sessions":
			cfg.MaxSessions = o.maxSessions
		case "http":
			cfg.HTTPAddr = o.httpAddr
		case "log-level":
			cfg.LogLevel = o.logLevel
		case "log-format":
			cfg.LogFormat = o.logFormat
		}
	})
}
