package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxkit/voxprep/internal/config"
	"github.com/voxkit/voxprep/internal/dispatch"
	"github.com/voxkit/voxprep/internal/encoder"
	"github.com/voxkit/voxprep/internal/ledger"
	"github.com/voxkit/voxprep/internal/observe"
	"github.com/voxkit/voxprep/pkg/audio"
)

// Embedder executes the speaker-embedding pass. It reads the finalised
// ledger purely to obtain its work list and never modifies it.
type Embedder struct {
	Cfg    *config.Config
	OutDir string

	// Checkpoint is handed to the encoder service on first load.
	Checkpoint string

	// NewService constructs one encoder service per worker. Model state is
	// process-local: each worker loads its own copy on first use.
	NewService func() encoder.Service

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ProgressOutput redirects progress bars; defaults to stderr.
	ProgressOutput io.Writer
}

type embedUnit struct {
	audioPath string
	embedPath string
}

func (e *Embedder) metrics() *observe.Metrics {
	if e.Metrics == nil {
		return observe.DefaultMetrics()
	}
	return e.Metrics
}

// Run embeds every utterance listed in the ledger, skipping artifacts that
// already exist. Per-unit failures are logged and counted without aborting
// the pass.
func (e *Embedder) Run(ctx context.Context) error {
	records, err := ledger.Read(filepath.Join(e.OutDir, ledger.Filename))
	if err != nil {
		return err
	}
	embedDir := filepath.Join(e.OutDir, EmbedDir)
	if err := os.MkdirAll(embedDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: create embed dir: %w", err)
	}

	units := make([]embedUnit, len(records))
	for i, r := range records {
		units[i] = embedUnit{
			audioPath: filepath.FromSlash(r.AudioPath),
			embedPath: filepath.Join(embedDir, r.EmbedFilename),
		}
	}

	opts := []dispatch.Option{dispatch.WithLabel("embedding")}
	if e.ProgressOutput != nil {
		opts = append(opts, dispatch.WithProgressOutput(e.ProgressOutput))
	}

	outcomes, err := dispatch.MapWorkers(ctx, units, e.Cfg.Run.Workers,
		func() func(context.Context, embedUnit) Outcome {
			svc := e.NewService()
			return func(ctx context.Context, u embedUnit) Outcome {
				return e.embedOne(ctx, svc, u)
			}
		}, opts...)
	if err != nil {
		return err
	}

	var written, skipped, failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			failed++
			e.metrics().UtteranceFailures.Add(ctx, 1)
			slog.Warn("embedding failed", "input", o.Unit, "err", o.Err)
		case o.Skip != "":
			skipped++
			e.metrics().UtterancesSkipped.Add(ctx, 1,
				metric.WithAttributes(attribute.String("reason", string(o.Skip))))
		default:
			written++
		}
	}
	slog.Info("embedding pass complete", "written", written, "skipped", skipped, "failed", failed)
	if written == 0 && failed > 0 {
		return fmt.Errorf("pipeline: embedding pass produced no artifacts: %d of %d utterances failed", failed, len(records))
	}
	return nil
}

// embedOne writes one embedding artifact. The service is loaded lazily on
// the worker's first non-skipped unit.
func (e *Embedder) embedOne(ctx context.Context, svc encoder.Service, u embedUnit) Outcome {
	if _, err := os.Stat(u.embedPath); err == nil {
		return Skipped(SkipExists, u.audioPath)
	}

	if !svc.IsLoaded() {
		if err := svc.Load(ctx, e.Checkpoint); err != nil {
			return Failed(u.audioPath, fmt.Errorf("load encoder: %w", err))
		}
	}

	start := time.Now()
	wav, err := audio.Load(u.audioPath, e.Cfg.Audio.SampleRate)
	if err != nil {
		return Failed(u.audioPath, err)
	}
	if e.Cfg.Audio.Rescale {
		wav = audio.Rescale(wav, e.Cfg.Audio.RescalingMax)
	}

	emb, err := svc.EmbedUtterance(ctx, svc.PreprocessWav(wav))
	if err != nil {
		return Failed(u.audioPath, err)
	}
	if err := writeEmbedding(u.embedPath, emb); err != nil {
		return Failed(u.audioPath, err)
	}

	e.metrics().UtteranceDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", "embed")))
	return Outcome{}
}
