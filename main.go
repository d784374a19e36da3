package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"golos/server/internal/core"
	"golos/server/internal/events"
	"golos/server/internal/httpapi"
	"golos/server/internal/metrics"
	"golos/server/internal/server"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	controlAddr := flag.String("control-addr", server.DefaultControlAddr, "TCP listen address for the control channel")
	mediaAddr := flag.String("media-addr", server.DefaultMediaAddr, "UDP listen address for the media channel")
	statusAddr := flag.String("status-addr", "", "HTTP listen address for the status API (disabled when empty)")
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	statsInterval := flag.Duration("stats-interval", 30*time.Second, "Interval between traffic stats log lines")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	if RunCLI(flag.Args(), *controlAddr, *mediaAddr, *statusAddr) {
		return
	}

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if *logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting server", "version", Version, "control", *controlAddr, "media", *mediaAddr)

	feed := events.NewHub()
	reg := core.NewRegistry(feed)
	counters := &metrics.Counters{}

	srv := server.New(server.Config{
		ControlAddr: *controlAddr,
		MediaAddr:   *mediaAddr,
	}, reg, counters, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	if *statusAddr != "" {
		api := httpapi.New(reg, counters, feed)
		go func() {
			if err := api.Run(ctx, *statusAddr); err != nil {
				slog.Error("status api error", "err", err)
			}
		}()
		slog.Info("status api enabled", "addr", *statusAddr)
	}

	go metrics.RunReporter(ctx, counters, reg, *statsInterval)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
