package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/bridge"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/cantao"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/config"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/demo"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/server"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

func main() {
	// init packages
	loader := config.Configured()
	srv := server.Configured()
	demoMode := lflag.Bool("demo", false, "Serve synthetic inverter data instead of calling the Solax API")

	// parse flags
	lflag.Configure()
	log.Configure()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var b *bridge.Bridge
	prefix := types.DefaultMetricPrefix
	if *demoMode {
		log.Ctx(ctx).InfoContext(ctx, "using demo data")
		cfg := types.CantaoConfig{MetricPrefix: prefix}
		b = bridge.New(demo.New(demo.DefaultSettings), cantao.NewClient(cfg, nil, 0), cfg)
	} else {
		cfg, err := loader.Load()
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to load config", slog.String("path", loader.Path()), slog.Any("error", err))
			os.Exit(1)
		}
		prefix = cfg.Cantao.MetricPrefix
		b = bridge.FromConfig(cfg)
	}
	srv.WithFetcher(b, prefix)

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
