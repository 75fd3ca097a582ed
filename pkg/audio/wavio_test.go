package audio_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/voxkit/voxprep/pkg/audio"
)

// sine returns a mono sine wave of the given duration.
func sine(freq float64, seconds float64, rate int) []float64 {
	n := int(seconds * float64(rate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestWriteAndLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tone.wav")
	want := sine(440, 0.5, 16000)

	if err := audio.WriteWAV(path, want, 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	got, err := audio.Load(path, 16000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Load: expected %d samples, got %d", len(want), len(got))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1.0/16384 {
			t.Fatalf("sample %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}

func TestLoadResamples(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "tone48k.wav")
	src := sine(440, 1.0, 48000)
	if err := audio.WriteWAV(path, src, 48000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}

	got, err := audio.Load(path, 16000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := len(got), 16000; got != want {
		t.Fatalf("resampled length: expected %d, got %d", want, got)
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []float64
		src, dst int
		wantLen  int
	}{
		{"same rate passthrough", []float64{1, 2, 3}, 16000, 16000, 3},
		{"downsample halves", make([]float64, 1000), 32000, 16000, 500},
		{"upsample doubles", make([]float64, 500), 8000, 16000, 1000},
		{"short input unchanged", []float64{1}, 8000, 16000, 1},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := audio.Resample(tc.in, tc.src, tc.dst)
			if len(got) != tc.wantLen {
				t.Fatalf("expected %d samples, got %d", tc.wantLen, len(got))
			}
		})
	}
}

func TestRescale(t *testing.T) {
	t.Parallel()

	t.Run("peak hits target", func(t *testing.T) {
		t.Parallel()
		samples := []float64{0.1, -0.5, 0.25}
		audio.Rescale(samples, 0.9)
		if peak := audio.MaxAbs(samples); math.Abs(peak-0.9) > 1e-12 {
			t.Fatalf("expected peak 0.9, got %f", peak)
		}
	})

	t.Run("silence is untouched", func(t *testing.T) {
		t.Parallel()
		samples := []float64{0, 0, 0}
		audio.Rescale(samples, 0.9)
		for i, s := range samples {
			if s != 0 {
				t.Fatalf("sample %d: expected 0, got %f", i, s)
			}
		}
	})
}

func TestDuration(t *testing.T) {
	t.Parallel()

	if d := audio.Duration(make([]float64, 32000), 16000); d != 2.0 {
		t.Fatalf("expected 2s, got %f", d)
	}
	if d := audio.Duration(nil, 0); d != 0 {
		t.Fatalf("expected 0 for zero rate, got %f", d)
	}
}
