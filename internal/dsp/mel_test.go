package dsp_test

import (
	"math"
	"testing"

	"github.com/voxkit/voxprep/internal/config"
	"github.com/voxkit/voxprep/internal/dsp"
)

func newExtractor(t *testing.T) *dsp.Extractor {
	t.Helper()
	cfg := config.Default()
	e, err := dsp.NewExtractor(cfg.Mel, cfg.Audio.SampleRate)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func tone(freq float64, n int, rate int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.9 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return out
}

func TestMelspectrogramShape(t *testing.T) {
	e := newExtractor(t)

	// 2 seconds at 16 kHz with hop 200 => 1 + 32000/200 = 161 frames.
	mel, err := e.Melspectrogram(tone(440, 32000, 16000))
	if err != nil {
		t.Fatalf("Melspectrogram: %v", err)
	}
	if got, want := len(mel), 161; got != want {
		t.Fatalf("expected %d frames, got %d", want, got)
	}
	for i, row := range mel {
		if len(row) != 80 {
			t.Fatalf("frame %d: expected 80 mel channels, got %d", i, len(row))
		}
	}
}

func TestMelspectrogramRange(t *testing.T) {
	e := newExtractor(t)

	mel, err := e.Melspectrogram(tone(440, 16000, 16000))
	if err != nil {
		t.Fatalf("Melspectrogram: %v", err)
	}
	for _, row := range mel {
		for _, v := range row {
			if v < -4 || v > 4 {
				t.Fatalf("mel value %f outside [-4, 4]", v)
			}
		}
	}
}

func TestMelspectrogramSilenceVsTone(t *testing.T) {
	e := newExtractor(t)

	silence, err := e.Melspectrogram(make([]float64, 16000))
	if err != nil {
		t.Fatalf("Melspectrogram(silence): %v", err)
	}
	loud, err := e.Melspectrogram(tone(440, 16000, 16000))
	if err != nil {
		t.Fatalf("Melspectrogram(tone): %v", err)
	}

	if sum(loud) <= sum(silence) {
		t.Fatalf("expected tone energy %f to exceed silence energy %f", sum(loud), sum(silence))
	}
	// Silence sits at the normalisation floor.
	for _, v := range silence[0] {
		if v != -4 {
			t.Fatalf("expected silence channel at -4, got %f", v)
		}
	}
}

func TestMelspectrogramEmptyInput(t *testing.T) {
	e := newExtractor(t)
	if _, err := e.Melspectrogram(nil); err == nil {
		t.Fatal("expected error for empty waveform, got nil")
	}
}

func sum(mel [][]float64) float64 {
	total := 0.0
	for _, row := range mel {
		for _, v := range row {
			total += v
		}
	}
	return total
}
