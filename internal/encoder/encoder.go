// Package encoder defines the speaker-embedding service contract and its
// implementations. A Service is constructed once per worker and loaded
// lazily on first use; model state is process-local and never shared across
// workers.
package encoder

import (
	"context"
	"errors"
	"math"
)

// ErrNotInitialized is returned by EmbedUtterance when the service has not
// been loaded. Callers must invoke Load before embedding; there is no
// implicit global loaded flag.
var ErrNotInitialized = errors.New("encoder: model not loaded")

// EmbeddingDim is the dimensionality of a speaker-embedding vector.
const EmbeddingDim = 256

// Service computes fixed-length speaker embeddings from waveforms.
type Service interface {
	// IsLoaded reports whether the model has been initialised.
	IsLoaded() bool

	// Load initialises the model from a checkpoint path or service URL.
	// Calling Load on an already-loaded service is a no-op.
	Load(ctx context.Context, checkpoint string) error

	// PreprocessWav applies the transform the model requires on its input:
	// silence trimming and loudness normalisation.
	PreprocessWav(wav []float64) []float64

	// EmbedUtterance computes the embedding vector of a preprocessed
	// waveform. Returns [ErrNotInitialized] when Load has not succeeded.
	EmbedUtterance(ctx context.Context, wav []float64) ([]float64, error)
}

// Preprocessing constants shared by implementations.
const (
	// trimThreshold is the absolute amplitude below which leading and
	// trailing samples count as silence.
	trimThreshold = 1e-3

	// targetRMS is the loudness every utterance is normalised to before
	// embedding.
	targetRMS = 0.1
)

// PreprocessWav trims leading and trailing silence and normalises loudness
// to a fixed RMS. Shared by the HTTP client and the in-memory mock so both
// present the same input contract.
func PreprocessWav(wav []float64) []float64 {
	lo := 0
	for lo < len(wav) && math.Abs(wav[lo]) < trimThreshold {
		lo++
	}
	hi := len(wav)
	for hi > lo && math.Abs(wav[hi-1]) < trimThreshold {
		hi--
	}
	trimmed := wav[lo:hi]
	if len(trimmed) == 0 {
		return trimmed
	}

	sum := 0.0
	for _, s := range trimmed {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(trimmed)))
	if rms == 0 {
		return trimmed
	}

	out := make([]float64, len(trimmed))
	gain := targetRMS / rms
	for i, s := range trimmed {
		out[i] = s * gain
	}
	return out
}
