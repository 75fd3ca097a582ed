package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, overlays it on [Default],
// and returns a validated [Config]. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if !cfg.Run.Layout.IsValid() {
		errs = append(errs, fmt.Errorf("run.layout %q is invalid; valid values: aligned, transcript", cfg.Run.Layout))
	}
	if cfg.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("run.workers must be >= 0, got %d", cfg.Run.Workers))
	}

	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Rescale && (cfg.Audio.RescalingMax <= 0 || cfg.Audio.RescalingMax > 1) {
		errs = append(errs, fmt.Errorf("audio.rescaling_max must be in (0, 1], got %g", cfg.Audio.RescalingMax))
	}

	if cfg.Mel.NFFT <= 0 {
		errs = append(errs, fmt.Errorf("mel.n_fft must be positive, got %d", cfg.Mel.NFFT))
	}
	if cfg.Mel.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("mel.hop_size must be positive, got %d", cfg.Mel.HopSize))
	}
	if cfg.Mel.WinSize > cfg.Mel.NFFT {
		errs = append(errs, fmt.Errorf("mel.win_size %d exceeds mel.n_fft %d", cfg.Mel.WinSize, cfg.Mel.NFFT))
	}
	if cfg.Mel.NumMels <= 0 {
		errs = append(errs, fmt.Errorf("mel.num_mels must be positive, got %d", cfg.Mel.NumMels))
	}
	if cfg.Mel.FMax <= cfg.Mel.FMin {
		errs = append(errs, fmt.Errorf("mel.fmax %g must exceed mel.fmin %g", cfg.Mel.FMax, cfg.Mel.FMin))
	}
	if cfg.Audio.SampleRate > 0 && cfg.Mel.FMax > float64(cfg.Audio.SampleRate)/2 {
		errs = append(errs, fmt.Errorf("mel.fmax %g exceeds the Nyquist frequency %g", cfg.Mel.FMax, float64(cfg.Audio.SampleRate)/2))
	}
	if cfg.Mel.ClipMelsLength && cfg.Mel.MaxMelFrames <= 0 {
		errs = append(errs, fmt.Errorf("mel.max_mel_frames must be positive when clip_mels_length is set, got %d", cfg.Mel.MaxMelFrames))
	}

	if cfg.Segment.UtteranceMinDuration < 0 {
		errs = append(errs, fmt.Errorf("segment.utterance_min_duration must be >= 0, got %g", cfg.Segment.UtteranceMinDuration))
	}
	if cfg.Segment.SilenceMinDurationSplit <= 0 {
		errs = append(errs, fmt.Errorf("segment.silence_min_duration_split must be positive, got %g", cfg.Segment.SilenceMinDurationSplit))
	}

	return errors.Join(errs...)
}
