package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/bridge"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/cantao"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/config"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/mqtt"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/solax"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitSolax  = 2
	exitCantao = 3
	exitOther  = 99
)

const (
	actionFetch = "fetch"
	actionPush  = "push"
	actionInfo  = "info"
)

type options struct {
	action string
	pretty bool
	dryRun bool
}

func main() {
	loader := config.Configured()
	action := lflag.String("action", actionFetch, "What to do: fetch, push or info")
	pretty := lflag.Bool("pretty", false, "Pretty print JSON output")
	dryRun := lflag.Bool("dry-run", false, "With --action push, fetch and print but do not push")
	lflag.Configure()
	log.Configure()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, loader, options{action: *action, pretty: *pretty, dryRun: *dryRun})
	cancel()
	os.Exit(code)
}

func runMain(ctx context.Context, loader *config.Loader, opts options) int {
	cfg, err := loader.Load()
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "configuration error", slog.String("path", loader.Path()), slog.Any("error", err))
		return exitConfig
	}

	var mirrors []bridge.Sink
	if opts.action == actionPush && !opts.dryRun && cfg.MQTT.Enabled() {
		pub, err := mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "continuing without mqtt mirror", slog.Any("error", err))
		} else {
			defer pub.Close()
			mirrors = append(mirrors, pub)
		}
	}

	err = run(ctx, cfg, opts, os.Stdout, mirrors...)
	code := exitCode(err)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "command failed", slog.String("action", opts.action), slog.Int("exit_code", code), slog.Any("error", err))
	}
	return code
}

func run(ctx context.Context, cfg *types.AppConfig, opts options, out io.Writer, mirrors ...bridge.Sink) error {
	b := bridge.FromConfig(cfg, mirrors...)

	switch opts.action {
	case actionFetch:
		res, err := b.FetchMetrics(ctx)
		if err != nil {
			return err
		}
		return writeFetch(out, res, opts.pretty)
	case actionPush:
		res, err := b.FetchMetrics(ctx)
		if err != nil {
			return err
		}
		if opts.dryRun {
			return writeFetch(out, res, opts.pretty)
		}
		if err := b.PushMetrics(ctx, res.Metrics); err != nil {
			return err
		}
		return writeJSON(out, struct {
			Status        string `json:"status"`
			PushedMetrics int    `json:"pushed_metrics"`
		}{Status: "ok", PushedMetrics: len(res.Metrics)}, false)
	case actionInfo:
		raw, err := solax.NewClient(cfg.Solax, nil).GetInverterInfo(ctx)
		if err != nil {
			return err
		}
		if opts.pretty {
			return writeJSON(out, raw.Map(), true)
		}
		return writeJSON(out, raw, false)
	default:
		return fmt.Errorf("unknown action: %s", opts.action)
	}
}

// writeFetch prints metrics and raw. Pretty output sorts the raw keys.
func writeFetch(out io.Writer, res bridge.Result, pretty bool) error {
	var raw any = res.Raw
	if pretty {
		raw = res.Raw.Map()
	}
	return writeJSON(out, struct {
		Metrics types.Metrics `json:"metrics"`
		Raw     any           `json:"raw"`
	}{Metrics: res.Metrics, Raw: raw}, pretty)
}

func writeJSON(out io.Writer, v any, pretty bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return err
	}
	_, err := out.Write(buf.Bytes())
	return err
}

func exitCode(err error) int {
	var apiErr *solax.APIError
	var pushErr *cantao.PushError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &apiErr):
		return exitSolax
	case errors.As(err, &pushErr):
		return exitCantao
	default:
		return exitOther
	}
}
