package encoder_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxkit/voxprep/internal/encoder"
	"github.com/voxkit/voxprep/internal/encoder/mock"
)

func TestPreprocessWav(t *testing.T) {
	t.Parallel()

	t.Run("trims leading and trailing silence", func(t *testing.T) {
		t.Parallel()
		wav := append(make([]float64, 100), 0.5, -0.5, 0.5)
		wav = append(wav, make([]float64, 100)...)

		got := encoder.PreprocessWav(wav)
		if len(got) != 3 {
			t.Fatalf("expected 3 samples after trim, got %d", len(got))
		}
	})

	t.Run("normalises loudness", func(t *testing.T) {
		t.Parallel()
		wav := []float64{0.8, -0.8, 0.8, -0.8}
		got := encoder.PreprocessWav(wav)

		sum := 0.0
		for _, s := range got {
			sum += s * s
		}
		rms := math.Sqrt(sum / float64(len(got)))
		if math.Abs(rms-0.1) > 1e-9 {
			t.Fatalf("expected RMS 0.1, got %g", rms)
		}
	})

	t.Run("all-silence input yields empty output", func(t *testing.T) {
		t.Parallel()
		if got := encoder.PreprocessWav(make([]float64, 50)); len(got) != 0 {
			t.Fatalf("expected empty output, got %d samples", len(got))
		}
	})
}

func TestClient(t *testing.T) {
	t.Parallel()

	newServer := func(t *testing.T) (*httptest.Server, *int) {
		t.Helper()
		loads := 0
		mux := http.NewServeMux()
		mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.NotFound(w, r)
				return
			}
			loads++
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.NotFound(w, r)
				return
			}
			var in struct {
				Samples    []float64 `json:"samples"`
				SampleRate int       `json:"sample_rate"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.SampleRate != 16000 {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string][]float64{"embedding": {0.1, 0.2, 0.3}})
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return srv, &loads
	}

	t.Run("load then embed", func(t *testing.T) {
		t.Parallel()
		srv, loads := newServer(t)
		c := encoder.NewClient(srv.URL, 16000)

		if c.IsLoaded() {
			t.Fatal("expected fresh client to be unloaded")
		}
		if err := c.Load(context.Background(), "encoder.pt"); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if !c.IsLoaded() {
			t.Fatal("expected client to be loaded")
		}

		got, err := c.EmbedUtterance(context.Background(), []float64{0.1, 0.2})
		if err != nil {
			t.Fatalf("EmbedUtterance: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3-dim embedding from test server, got %d", len(got))
		}

		// A second Load is a no-op.
		if err := c.Load(context.Background(), "encoder.pt"); err != nil {
			t.Fatalf("Load again: %v", err)
		}
		if *loads != 1 {
			t.Fatalf("expected exactly 1 load request, got %d", *loads)
		}
	})

	t.Run("embed before load", func(t *testing.T) {
		t.Parallel()
		srv, _ := newServer(t)
		c := encoder.NewClient(srv.URL, 16000)
		_, err := c.EmbedUtterance(context.Background(), []float64{0.1})
		if !errors.Is(err, encoder.ErrNotInitialized) {
			t.Fatalf("expected ErrNotInitialized, got %v", err)
		}
	})

	t.Run("server error surfaces", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model missing", http.StatusInternalServerError)
		}))
		t.Cleanup(srv.Close)

		c := encoder.NewClient(srv.URL, 16000)
		if err := c.Load(context.Background(), "gone.pt"); err == nil {
			t.Fatal("expected load error, got nil")
		}
	})
}

func TestMockDeterminism(t *testing.T) {
	t.Parallel()

	s := &mock.Service{}
	if _, err := s.EmbedUtterance(context.Background(), []float64{0.1}); !errors.Is(err, encoder.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized before load, got %v", err)
	}
	if err := s.Load(context.Background(), "mock"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	wav := []float64{0.1, -0.2, 0.3}
	a, err := s.EmbedUtterance(context.Background(), wav)
	if err != nil {
		t.Fatalf("EmbedUtterance: %v", err)
	}
	b, err := s.EmbedUtterance(context.Background(), wav)
	if err != nil {
		t.Fatalf("EmbedUtterance: %v", err)
	}
	if len(a) != encoder.EmbeddingDim {
		t.Fatalf("expected %d dims, got %d", encoder.EmbeddingDim, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("dim %d: embeddings differ for identical input", i)
		}
	}
}
