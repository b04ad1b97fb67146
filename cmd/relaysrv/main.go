package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/wtask/relay/internal/config"
	"github.com/wtask/relay/internal/httpapi"
	"github.com/wtask/relay/internal/logging"
	"github.com/wtask/relay/internal/relay"
	"github.com/wtask/relay/internal/transport/wsline"
)

func main() {
	cfg, err := config.Load(Flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, err)
		os.Exit(1)
	}
	Flags.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout).With("app", BinaryName, "version", Version)
	slog.SetDefault(logger)
	logger.Info("Started with config", "config", fmt.Sprintf("%+v", *cfg))

	if err := run(cfg, logger); err != nil {
		logger.Error("Relay server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Relay server stopped, bye")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	server, err := relay.NewServer(
		cfg.Addr,
		relay.WithLogger(logger),
		relay.WithBroadcastInterval(cfg.BroadcastInterval),
		relay.WithWriteTimeout(cfg.WriteTimeout),
		relay.WithMaxLineBytes(cfg.MaxLineBytes),
		relay.WithMaxSessions(cfg.MaxSessions),
	)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("can't listen TCP %s: %w", cfg.Addr, err)
	}

	var api *httpapi.Server
	var apiListener net.Listener
	if cfg.HTTPAddr != "" {
		apiListener, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			listener.Close()
			return fmt.Errorf("can't listen HTTP %s: %w", cfg.HTTPAddr, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	failures := make(chan error, 3)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, relay.ErrServerClosed) {
			failures <- fmt.Errorf("relay: %w", err)
		}
	}()

	if apiListener != nil {
		ws := wsline.NewListener(apiListener.Addr(), nil, logger.With("transport", "websocket"))
		go func() {
			if err := server.Serve(ws); err != nil && !errors.Is(err, relay.ErrServerClosed) {
				failures <- fmt.Errorf("websocket relay: %w", err)
			}
		}()
		api = httpapi.NewServer(server, ws, Version, logger.With("component", "httpapi"))
		go func() {
			if err := api.Serve(apiListener); err != nil {
				failures <- fmt.Errorf("http: %w", err)
			}
		}()
	}
	logger.Info("Relay server has started, press Ctrl-C to stop")

	var failure error
	select {
	case <-ctx.Done():
		logger.Info("Got stop signal")
	case failure = <-failures:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	errs := []error{failure}
	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
