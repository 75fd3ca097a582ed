package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voxkit/voxprep/internal/config"
	"github.com/voxkit/voxprep/internal/corpus"
	"github.com/voxkit/voxprep/internal/dispatch"
	"github.com/voxkit/voxprep/internal/ledger"
	"github.com/voxkit/voxprep/internal/observe"
	"github.com/voxkit/voxprep/internal/segment"
	"github.com/voxkit/voxprep/pkg/audio"
)

// Runner executes the mel-extraction pass over a datasets root.
type Runner struct {
	Cfg    *config.Config
	Root   string
	OutDir string

	// Denoiser is applied during aligned-layout segmentation. Nil disables
	// denoising.
	Denoiser segment.Denoiser

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// ProgressOutput redirects progress bars; defaults to stderr.
	ProgressOutput io.Writer
}

func (r *Runner) metrics() *observe.Metrics {
	if r.Metrics == nil {
		return observe.DefaultMetrics()
	}
	return r.Metrics
}

func (r *Runner) dispatchOpts(label string) []dispatch.Option {
	opts := []dispatch.Option{dispatch.WithLabel(label)}
	if r.ProgressOutput != nil {
		opts = append(opts, dispatch.WithProgressOutput(r.ProgressOutput))
	}
	return opts
}

// Preprocess scans the corpus, fans utterances out over the worker pool,
// serialises completed records into the ledger, and verifies the result.
// It returns the recomputed corpus statistics; an empty ledger is an error.
func (r *Runner) Preprocess(ctx context.Context) (ledger.Stats, error) {
	if err := EnsureOutputDirs(r.OutDir); err != nil {
		return ledger.Stats{}, err
	}

	// Fail on config problems before any dispatch.
	if _, err := NewProcessor(r.Cfg, r.OutDir, r.Cfg.Run.SkipExisting); err != nil {
		return ledger.Stats{}, err
	}

	// Completed records reach the ledger as the dispatcher delivers them,
	// so an interrupted run loses at most the in-flight units.
	ledgerPath := filepath.Join(r.OutDir, ledger.Filename)
	w, err := ledger.NewWriter(ledgerPath, r.Cfg.Run.Resume)
	if err != nil {
		return ledger.Stats{}, err
	}
	sink := &ledgerSink{w: w}

	switch r.Cfg.Run.Layout {
	case config.LayoutTranscript:
		err = r.preprocessTranscript(ctx, sink)
	case config.LayoutAligned:
		err = r.preprocessAligned(ctx, sink)
	default:
		err = fmt.Errorf("pipeline: unknown layout %q", r.Cfg.Run.Layout)
	}
	if err != nil {
		w.Close()
		return ledger.Stats{}, err
	}
	if err := w.Close(); err != nil {
		return ledger.Stats{}, err
	}
	slog.Info("mel extraction pass complete",
		"written", sink.written, "skipped", sink.skipped, "failed", sink.failed)

	stats, err := ledger.Verify(ledgerPath, r.Cfg.Audio.SampleRate)
	if err != nil {
		return ledger.Stats{}, err
	}
	r.metrics().CorpusHours.Add(ctx, stats.Hours)

	slog.Info("dataset summary",
		"utterances", stats.Utterances,
		"mel_frames", stats.MelFrames,
		"timesteps", stats.Timesteps,
		"hours", fmt.Sprintf("%.2f", stats.Hours),
	)
	slog.Info("dataset maxima",
		"max_text_len", stats.MaxTextLen,
		"max_mel_frames", stats.MaxMelFrames,
		"max_timesteps", stats.MaxTimesteps,
	)
	return stats, nil
}

// preprocessTranscript handles the one-line-per-utterance layout: every
// transcript line is one work unit producing at most one record.
func (r *Runner) preprocessTranscript(ctx context.Context, sink *ledgerSink) error {
	lines, err := corpus.ScanTranscript(r.Root)
	if err != nil {
		return err
	}
	slog.Info("scanned transcript corpus", "root", r.Root, "utterances", len(lines))

	return dispatch.ForEachWorkers(ctx, lines, r.Cfg.Run.Workers,
		func() func(context.Context, corpus.TranscriptLine) Outcome {
			proc, err := NewProcessor(r.Cfg, r.OutDir, r.Cfg.Run.SkipExisting)
			if err != nil {
				return func(_ context.Context, l corpus.TranscriptLine) Outcome {
					return Failed(l.AudioPath(), err)
				}
			}
			return func(_ context.Context, l corpus.TranscriptLine) Outcome {
				wavPath := l.AudioPath()
				if _, err := os.Stat(wavPath); err != nil {
					return Failed(wavPath, fmt.Errorf("missing audio file: %w", err))
				}
				start := time.Now()
				out := proc.Process(nil, wavPath, l.Text, SanitizeBase(l.ID))
				r.metrics().UtteranceDuration.Record(ctx, time.Since(start).Seconds(),
					metric.WithAttributes(attribute.String("stage", "mel")))
				return out
			}
		},
		func(_ int, o Outcome) error {
			return r.consume(ctx, sink, o)
		}, r.dispatchOpts("speakers")...)
}

// preprocessAligned handles the aligned layout: every speaker directory is
// one work unit producing zero or more records, one per emitted segment.
func (r *Runner) preprocessAligned(ctx context.Context, sink *ledgerSink) error {
	speakers, err := corpus.ScanSpeakers(r.Root)
	if err != nil {
		return err
	}
	slog.Info("scanned aligned corpus", "root", r.Root, "speakers", len(speakers))

	engine := segment.New(r.Cfg, r.Denoiser)
	return dispatch.ForEachWorkers(ctx, speakers, r.Cfg.Run.Workers,
		func() func(context.Context, string) []Outcome {
			proc, err := NewProcessor(r.Cfg, r.OutDir, r.Cfg.Run.SkipExisting)
			if err != nil {
				return func(_ context.Context, dir string) []Outcome {
					return []Outcome{Failed(dir, err)}
				}
			}
			return func(ctx context.Context, dir string) []Outcome {
				return r.processSpeaker(ctx, proc, engine, dir)
			}
		},
		func(_ int, outs []Outcome) error {
			for _, o := range outs {
				if err := r.consume(ctx, sink, o); err != nil {
					return err
				}
			}
			return nil
		}, r.dispatchOpts("speakers")...)
}

// processSpeaker segments every aligned recording of one speaker and
// processes the resulting sub-utterances. A failing recording is reported as
// one failed outcome without aborting the rest of the speaker's material.
func (r *Runner) processSpeaker(ctx context.Context, proc *Processor, engine *segment.Engine, speakerDir string) []Outcome {
	alignments, err := corpus.ReadAlignments(speakerDir)
	if err != nil {
		return []Outcome{Failed(speakerDir, err)}
	}

	var outcomes []Outcome
	for _, a := range alignments {
		wav, err := audio.Load(a.AudioPath, r.Cfg.Audio.SampleRate)
		if err != nil {
			outcomes = append(outcomes, Failed(a.AudioPath, err))
			continue
		}
		if r.Cfg.Audio.Rescale {
			wav = audio.Rescale(wav, r.Cfg.Audio.RescalingMax)
		}

		segments, err := engine.Split(wav, a.Words, a.EndTimes)
		if err != nil {
			outcomes = append(outcomes, Failed(a.AudioPath, err))
			continue
		}

		stem := strings.TrimSuffix(filepath.Base(a.AudioPath), filepath.Ext(a.AudioPath))
		for i, seg := range segments {
			base := fmt.Sprintf("%s_%02d", stem, i)
			start := time.Now()
			outcomes = append(outcomes, proc.Process(seg.Samples, a.AudioPath, seg.Text, base))
			r.metrics().UtteranceDuration.Record(ctx, time.Since(start).Seconds(),
				metric.WithAttributes(attribute.String("stage", "mel")))
		}
	}
	return outcomes
}

// ledgerSink accumulates pass counters around the single ledger writer. All
// writes happen in the dispatcher's consumer goroutine.
type ledgerSink struct {
	w       *ledger.Writer
	written int
	skipped int
	failed  int
}

// consume serialises one outcome: completed records are appended to the
// ledger immediately, discards are counted, failures are logged with their
// offending input.
func (r *Runner) consume(ctx context.Context, s *ledgerSink, o Outcome) error {
	switch {
	case o.Err != nil:
		s.failed++
		r.metrics().UtteranceFailures.Add(ctx, 1)
		slog.Warn("utterance failed", "input", o.Unit, "err", o.Err)
	case o.Record != nil:
		if err := s.w.Append(*o.Record); err != nil {
			return err
		}
		s.written++
		r.metrics().UtterancesProcessed.Add(ctx, 1)
	default:
		s.skipped++
		r.metrics().UtterancesSkipped.Add(ctx, 1,
			metric.WithAttributes(attribute.String("reason", string(o.Skip))))
	}
	return nil
}
