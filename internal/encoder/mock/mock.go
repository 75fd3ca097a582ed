// Package mock provides an in-memory encoder.Service for tests: embeddings
// are deterministic functions of the input waveform, so identical utterances
// map to identical vectors without a running inference server.
package mock

import (
	"context"
	"math"
	"sync"

	"github.com/voxkit/voxprep/internal/encoder"
)

// Compile-time interface assertion.
var _ encoder.Service = (*Service)(nil)

// Service is a deterministic, dependency-free encoder.
type Service struct {
	// LoadErr, when set, is returned by Load to exercise failure paths.
	LoadErr error

	mu         sync.Mutex
	loaded     bool
	loadCalls  int
	embedCalls int
}

// IsLoaded reports whether Load has succeeded.
func (s *Service) IsLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Load marks the service as initialised.
func (s *Service) Load(_ context.Context, checkpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	s.loadCalls++
	if s.LoadErr != nil {
		return s.LoadErr
	}
	s.loaded = true
	return nil
}

// LoadCalls returns how many times Load performed initialisation work.
func (s *Service) LoadCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCalls
}

// EmbedCalls returns how many embeddings were computed.
func (s *Service) EmbedCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.embedCalls
}

// PreprocessWav applies the shared encoder input transform.
func (s *Service) PreprocessWav(wav []float64) []float64 {
	return encoder.PreprocessWav(wav)
}

// EmbedUtterance returns a unit-norm vector derived deterministically from
// the waveform contents.
func (s *Service) EmbedUtterance(_ context.Context, wav []float64) ([]float64, error) {
	if !s.IsLoaded() {
		return nil, encoder.ErrNotInitialized
	}
	s.mu.Lock()
	s.embedCalls++
	s.mu.Unlock()

	seed := 1.0
	for i, v := range wav {
		seed += v * float64(i%97+1)
	}

	out := make([]float64, encoder.EmbeddingDim)
	norm := 0.0
	for i := range out {
		out[i] = math.Sin(seed + float64(i))
		norm += out[i] * out[i]
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] /= norm
	}
	return out, nil
}
