// Package config provides the configuration schema, loader, and validation
// for the voxprep preprocessing pipeline.
package config

// LogLevel controls log verbosity for the voxprep CLI.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Layout selects how the corpus scanner interprets a datasets root.
type Layout string

const (
	// LayoutAligned expects speaker directories containing book directories
	// with time-aligned transcript files. Long recordings are segmented on
	// silences before feature extraction.
	LayoutAligned Layout = "aligned"

	// LayoutTranscript expects one metadata.csv per speaker directory with
	// tab-separated (utterance_id, text) lines and audio under wavs/. Each
	// recording is a single utterance.
	LayoutTranscript Layout = "transcript"
)

// IsValid reports whether l is a recognised corpus layout.
func (l Layout) IsValid() bool {
	return l == LayoutAligned || l == LayoutTranscript
}

// Config is the root configuration structure for voxprep.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`

	Audio   AudioConfig   `yaml:"audio"`
	Mel     MelConfig     `yaml:"mel"`
	Segment SegmentConfig `yaml:"segment"`
	Run     RunConfig     `yaml:"run"`
	Encoder EncoderConfig `yaml:"encoder"`
}

// AudioConfig holds waveform loading and normalisation settings.
type AudioConfig struct {
	// SampleRate is the target rate every waveform is resampled to.
	SampleRate int `yaml:"sample_rate"`

	// Rescale enables peak-amplitude normalisation after loading.
	Rescale bool `yaml:"rescale"`

	// RescalingMax is the peak absolute amplitude after rescaling.
	RescalingMax float64 `yaml:"rescaling_max"`
}

// MelConfig holds the signal parameters of the mel-spectrogram transform.
type MelConfig struct {
	// NFFT is the FFT size in samples.
	NFFT int `yaml:"n_fft"`

	// HopSize is the frame stride in samples.
	HopSize int `yaml:"hop_size"`

	// WinSize is the analysis window length in samples.
	WinSize int `yaml:"win_size"`

	// NumMels is the number of mel filterbank channels.
	NumMels int `yaml:"num_mels"`

	// FMin and FMax bound the mel filterbank in Hz.
	FMin float64 `yaml:"fmin"`
	FMax float64 `yaml:"fmax"`

	// Preemphasis is the pre-emphasis filter coefficient. Zero disables it.
	Preemphasis float64 `yaml:"preemphasis"`

	// RefLevelDB and MinLevelDB set the dB normalisation range.
	RefLevelDB float64 `yaml:"ref_level_db"`
	MinLevelDB float64 `yaml:"min_level_db"`

	// MaxMelFrames is the discard-long threshold when ClipMelsLength is set.
	MaxMelFrames int `yaml:"max_mel_frames"`

	// ClipMelsLength enables discarding utterances longer than MaxMelFrames.
	ClipMelsLength bool `yaml:"clip_mels_length"`
}

// SegmentConfig holds silence-segmentation thresholds.
type SegmentConfig struct {
	// UtteranceMinDuration is the discard-short threshold in seconds. It is
	// also the re-attachment trigger: segments shorter than this are merged
	// into a neighbour when possible.
	UtteranceMinDuration float64 `yaml:"utterance_min_duration"`

	// SilenceMinDurationSplit is the minimum pause length in seconds for a
	// silence to become a candidate cut point.
	SilenceMinDurationSplit float64 `yaml:"silence_min_duration_split"`
}

// RunConfig holds execution-mode settings for a preprocessing invocation.
type RunConfig struct {
	// Layout selects the corpus structure the scanner expects.
	Layout Layout `yaml:"layout"`

	// Workers is the worker pool size. Zero runs every unit sequentially in
	// the calling goroutine.
	Workers int `yaml:"workers"`

	// Resume appends to an existing ledger instead of truncating it.
	Resume bool `yaml:"resume"`

	// SkipExisting treats already-written artifacts as complete and avoids
	// recomputation. Independent from Resume: recompute-but-append and
	// reuse-but-truncate are both valid combinations.
	SkipExisting bool `yaml:"skip_existing"`
}

// EncoderConfig identifies the speaker-embedding service.
type EncoderConfig struct {
	// URL is the base address of the encoder inference service.
	URL string `yaml:"url"`

	// Checkpoint is the model checkpoint path handed to the encoder on first
	// load.
	Checkpoint string `yaml:"checkpoint"`
}

// Default returns a Config populated with the standard 16 kHz hyperparameters.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Audio: AudioConfig{
			SampleRate:   16000,
			Rescale:      true,
			RescalingMax: 0.9,
		},
		Mel: MelConfig{
			NFFT:           800,
			HopSize:        200,
			WinSize:        800,
			NumMels:        80,
			FMin:           55,
			FMax:           7600,
			Preemphasis:    0.97,
			RefLevelDB:     20,
			MinLevelDB:     -100,
			MaxMelFrames:   900,
			ClipMelsLength: true,
		},
		Segment: SegmentConfig{
			UtteranceMinDuration:    1.6,
			SilenceMinDurationSplit: 0.4,
		},
		Run: RunConfig{
			Layout:  LayoutTranscript,
			Workers: 0,
		},
		Encoder: EncoderConfig{
			URL: "http://127.0.0.1:8790",
		},
	}
}

// MaxSegmentDuration returns the upper bound in seconds a merged segment may
// reach before a re-attachment is rejected. Derived from the mel frame budget:
// hop_size * max_mel_frames / sample_rate.
func (c *Config) MaxSegmentDuration() float64 {
	if c.Audio.SampleRate == 0 {
		return 0
	}
	return float64(c.Mel.HopSize) * float64(c.Mel.MaxMelFrames) / float64(c.Audio.SampleRate)
}
