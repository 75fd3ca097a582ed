// Command voxprep preprocesses speech corpora for voice-cloning training.
// The preprocess subcommand runs the mel-extraction pass over a datasets
// root and writes the training ledger; the embed subcommand runs the
// speaker-embedding pass over a finished ledger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxkit/voxprep/internal/config"
	"github.com/voxkit/voxprep/internal/encoder"
	"github.com/voxkit/voxprep/internal/observe"
	"github.com/voxkit/voxprep/internal/pipeline"
	"github.com/voxkit/voxprep/internal/segment"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 2
	}
	switch args[0] {
	case "preprocess":
		return runPreprocess(args[1:])
	case "embed":
		return runEmbed(args[1:])
	case "help", "-h", "-help", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "voxprep: unknown command %q\n\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: voxprep <command> [flags]

Commands:
  preprocess   extract mel spectrograms and write the training ledger
  embed        compute speaker embeddings for a finished ledger

Run "voxprep <command> -h" for the flags of a command.
`)
}

func runPreprocess(args []string) int {
	fs := flag.NewFlagSet("preprocess", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (optional)")
	root := fs.String("root", "", "datasets root to scan")
	outDir := fs.String("out", "", "output directory for artifacts and the ledger")
	layout := fs.String("layout", "", "corpus layout: aligned or transcript")
	workers := fs.Int("workers", 0, "worker count; 0 runs sequentially")
	resume := fs.Bool("resume", false, "append to an existing ledger and skip existing artifacts")
	fs.Parse(args)

	if *root == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "voxprep: preprocess requires -root and -out")
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	// CLI flags override the file. -resume switches both resumability axes
	// on; the config file can still set them independently.
	if *layout != "" {
		cfg.Run.Layout = config.Layout(*layout)
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			cfg.Run.Workers = *workers
		}
	})
	if *resume {
		cfg.Run.Resume = true
		cfg.Run.SkipExisting = true
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "voxprep: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("preprocess starting",
		"root", *root,
		"out", *outDir,
		"layout", cfg.Run.Layout,
		"workers", cfg.Run.Workers,
		"resume", cfg.Run.Resume,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := initMetrics(ctx)
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer shutdownMetrics(shutdown)

	runner := &pipeline.Runner{
		Cfg:      cfg,
		Root:     *root,
		OutDir:   *outDir,
		Denoiser: &segment.SpectralDenoiser{},
	}
	if _, err := runner.Preprocess(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("preprocess interrupted")
		} else {
			slog.Error("preprocess failed", "err", err)
		}
		return 1
	}
	return 0
}

func runEmbed(args []string) int {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to the YAML configuration file (optional)")
	outDir := fs.String("out", "", "output directory holding the ledger")
	checkpoint := fs.String("encoder", "", "encoder model checkpoint path")
	workers := fs.Int("workers", 0, "worker count; 0 runs sequentially")
	fs.Parse(args)

	if *outDir == "" {
		fmt.Fprintln(os.Stderr, "voxprep: embed requires -out")
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			cfg.Run.Workers = *workers
		}
	})
	if *checkpoint != "" {
		cfg.Encoder.Checkpoint = *checkpoint
	}
	if cfg.Encoder.Checkpoint == "" {
		fmt.Fprintln(os.Stderr, "voxprep: embed requires an encoder checkpoint (-encoder or encoder.checkpoint)")
		return 2
	}
	if cfg.Encoder.URL == "" {
		fmt.Fprintln(os.Stderr, "voxprep: embed requires an encoder service URL (encoder.url)")
		return 2
	}

	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("embedding pass starting",
		"out", *outDir,
		"encoder_url", cfg.Encoder.URL,
		"checkpoint", cfg.Encoder.Checkpoint,
		"workers", cfg.Run.Workers,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := initMetrics(ctx)
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer shutdownMetrics(shutdown)

	embedder := &pipeline.Embedder{
		Cfg:        cfg,
		OutDir:     *outDir,
		Checkpoint: cfg.Encoder.Checkpoint,
		NewService: func() encoder.Service {
			return encoder.NewClient(cfg.Encoder.URL, cfg.Audio.SampleRate)
		},
	}
	if err := embedder.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Warn("embedding pass interrupted")
		} else {
			slog.Error("embedding pass failed", "err", err)
		}
		return 1
	}
	return 0
}

// loadConfig reads the YAML config at path, or the built-in defaults when no
// path is given.
func loadConfig(path string) (*config.Config, bool) {
	if path == "" {
		return config.Default(), true
	}
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxprep: config file %q not found — copy configs/example.yaml to get started\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "voxprep: %v\n", err)
		}
		return nil, false
	}
	return cfg, true
}

func initMetrics(ctx context.Context) (func(context.Context) error, error) {
	return observe.InitProvider(ctx, observe.ProviderConfig{})
}

func shutdownMetrics(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Warn("metrics shutdown error", "err", err)
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
