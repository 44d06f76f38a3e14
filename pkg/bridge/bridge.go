// Package bridge sequences the Solax fetch, normalization and CANTAO push.
package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/cantao"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/log"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/normalize"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/solax"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/telemetry"
	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

// Source returns the latest raw realtime payload.
type Source interface {
	GetRealtimeData(ctx context.Context) (types.RawMetrics, error)
}

// Sink receives normalized metrics.
type Sink interface {
	PushMetrics(ctx context.Context, metrics types.Metrics) error
}

// Result holds both forms of a single fetch. Raw is kept for diagnostics and
// display.
type Result struct {
	Raw     types.RawMetrics `json:"raw"`
	Metrics types.Metrics    `json:"metrics"`
}

// Bridge fetches from a Source and pushes to a Sink. It never retries.
type Bridge struct {
	source  Source
	sink    Sink
	config  types.CantaoConfig
	mirrors []Sink
}

// New returns a Bridge. Mirrors receive a copy of every successful push;
// their failures are logged and never returned.
func New(source Source, sink Sink, cfg types.CantaoConfig, mirrors ...Sink) *Bridge {
	return &Bridge{
		source:  source,
		sink:    sink,
		config:  cfg,
		mirrors: mirrors,
	}
}

// FromConfig wires the Solax and CANTAO HTTP clients for cfg. The CANTAO
// client shares the Solax timeout.
func FromConfig(cfg *types.AppConfig, mirrors ...Sink) *Bridge {
	source := solax.NewClient(cfg.Solax, nil)
	sink := cantao.NewClient(cfg.Cantao, nil, cfg.Solax.TimeoutDuration())
	return New(source, sink, cfg.Cantao, mirrors...)
}

// FetchMetrics fetches realtime data and normalizes it. Source errors are
// returned unmodified.
func (b *Bridge) FetchMetrics(ctx context.Context) (Result, error) {
	log.Ctx(ctx).DebugContext(ctx, "fetching realtime data from solax")

	start := time.Now()
	raw, err := b.source.GetRealtimeData(ctx)
	telemetry.ObserveFetch(start, err)
	if err != nil {
		return Result{}, err
	}

	res := normalize.Normalize(raw, b.config)
	for _, key := range res.Skipped {
		log.Ctx(ctx).DebugContext(ctx, "skipping non-numeric field", slog.String("field", key))
	}
	telemetry.SkippedFields.Add(float64(len(res.Skipped)))

	return Result{Raw: raw, Metrics: res.Metrics}, nil
}

// PushMetrics hands metrics to the sink without fetching again.
func (b *Bridge) PushMetrics(ctx context.Context, metrics types.Metrics) error {
	err := b.sink.PushMetrics(ctx, metrics)
	telemetry.Pushes.WithLabelValues(telemetry.Result(err)).Inc()
	if err != nil {
		return err
	}
	telemetry.PushedMetrics.Add(float64(len(metrics)))
	log.Ctx(ctx).InfoContext(ctx, "pushed metrics", slog.Int("count", len(metrics)))

	for _, m := range b.mirrors {
		if err := m.PushMetrics(ctx, metrics); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to mirror metrics", slog.Any("error", err))
		}
	}
	return nil
}
