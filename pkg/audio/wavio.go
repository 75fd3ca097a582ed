// Package audio provides the waveform primitives used by the preprocessing
// pipeline: WAV decoding to normalised float64 samples, linear resampling to
// the configured target rate, and peak-amplitude rescaling.
//
// All functions operate on mono waveforms with samples in [-1, 1]. Stereo
// input is mixed down to mono at decode time.
package audio

import (
	"fmt"
	"io"
	"math"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Load reads the WAV file at path, mixes it down to mono, resamples it to
// sampleRate and returns normalised float64 samples.
func Load(path string, sampleRate int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	samples, err := Decode(f, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return samples, nil
}

// Decode reads a WAV stream from r, mixes it to mono, and resamples the
// result to sampleRate. Samples are scaled to [-1, 1] by the source bit depth.
func Decode(r io.ReadSeeker, sampleRate int) ([]float64, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: not a valid WAV file")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: read PCM: %w", err)
	}
	return fromPCM(buf, sampleRate)
}

func fromPCM(buf *gaudio.IntBuffer, sampleRate int) ([]float64, error) {
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return Resample(samples, buf.Format.SampleRate, sampleRate), nil
}

// Resample converts samples from srcRate to dstRate using linear
// interpolation. It returns the input unchanged when the rates already match
// or either rate is non-positive.
func Resample(samples []float64, srcRate, dstRate int) []float64 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}

	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]float64, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// Rescale scales samples in place so that the peak absolute amplitude equals
// target. A silent waveform is returned unchanged.
func Rescale(samples []float64, target float64) []float64 {
	peak := MaxAbs(samples)
	if peak == 0 {
		return samples
	}
	gain := target / peak
	for i := range samples {
		samples[i] *= gain
	}
	return samples
}

// MaxAbs returns the peak absolute amplitude of samples.
func MaxAbs(samples []float64) float64 {
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// Duration returns the length of samples in seconds at the given rate.
func Duration(samples []float64, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(len(samples)) / float64(sampleRate)
}

// WriteWAV persists mono float64 samples as 16-bit PCM. Samples outside
// [-1, 1] are clamped. Used by tooling and test fixtures.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		v := math.Round(s * 32767)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		buf.Data[i] = int(v)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise %q: %w", path, err)
	}
	return nil
}
