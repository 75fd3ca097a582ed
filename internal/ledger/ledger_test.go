package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxkit/voxprep/internal/ledger"
)

func sample(i int) ledger.Record {
	return ledger.Record{
		AudioPath:     "corpus/wavs/000" + string(rune('1'+i)) + ".wav",
		MelFilename:   "mel-000" + string(rune('1'+i)) + ".npy",
		EmbedFilename: "embed-000" + string(rune('1'+i)) + ".npy",
		Timesteps:     32000,
		MelFrames:     161,
		Text:          "hello world",
	}
}

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	r := sample(0)
	got, err := ledger.ParseRecord(r.String())
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if got != r {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, r)
	}
}

func TestRecordBackslashesNormalised(t *testing.T) {
	t.Parallel()

	r := ledger.Record{AudioPath: `corpus\wavs\0001.wav`, MelFilename: "m", EmbedFilename: "e", Text: "x"}
	if !strings.HasPrefix(r.String(), "corpus/wavs/0001.wav|") {
		t.Fatalf("expected forward slashes, got %q", r.String())
	}
}

func TestRecordTextMayContainPipes(t *testing.T) {
	t.Parallel()

	r := sample(0)
	r.Text = "left|right"
	got, err := ledger.ParseRecord(r.String())
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}
	if got.Text != "left|right" {
		t.Fatalf("expected pipe preserved in text, got %q", got.Text)
	}
}

func TestParseRecordErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "a|b|c"},
		{"bad timesteps", "a|b|c|x|5|t"},
		{"bad mel frames", "a|b|c|5|x|t"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ledger.ParseRecord(tc.line); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestWriterTruncateAndAppend(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ledger.Filename)

	w, err := ledger.NewWriter(path, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Append(sample(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Resume: the existing line survives and the new one is appended.
	w, err = ledger.NewWriter(path, true)
	if err != nil {
		t.Fatalf("NewWriter(resume): %v", err)
	}
	if err := w.Append(sample(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err := ledger.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after resume, got %d", len(records))
	}

	// Truncate mode discards prior content.
	w, err = ledger.NewWriter(path, false)
	if err != nil {
		t.Fatalf("NewWriter(truncate): %v", err)
	}
	if err := w.Append(sample(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records, err = ledger.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after truncate, got %d", len(records))
	}
}

func TestWriterAppendsAreImmediatelyVisible(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ledger.Filename)
	w, err := ledger.NewWriter(path, false)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Append(sample(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// The record must be on disk before Close: an interrupted run keeps
	// every record appended so far.
	records, err := ledger.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record before Close, got %d", len(records))
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	t.Run("aggregates", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ledger.Filename)
		w, err := ledger.NewWriter(path, false)
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}
		for i := 0; i < 3; i++ {
			r := sample(i)
			r.Timesteps = 16000 * (i + 1)
			r.MelFrames = 81 * (i + 1)
			if err := w.Append(r); err != nil {
				t.Fatalf("Append: %v", err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		stats, err := ledger.Verify(path, 16000)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if stats.Utterances != 3 {
			t.Fatalf("expected 3 utterances, got %d", stats.Utterances)
		}
		// (16000 + 32000 + 48000) / 16000 / 3600 hours.
		if want := 6.0 / 3600; stats.Hours != want {
			t.Fatalf("expected %g hours, got %g", want, stats.Hours)
		}
		if stats.MaxTimesteps != 48000 || stats.MaxMelFrames != 243 {
			t.Fatalf("unexpected maxima: %+v", stats)
		}
		if stats.MaxTextLen != len("hello world") {
			t.Fatalf("expected max text length %d, got %d", len("hello world"), stats.MaxTextLen)
		}
	})

	t.Run("text length counts characters", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ledger.Filename)
		w, err := ledger.NewWriter(path, false)
		if err != nil {
			t.Fatalf("NewWriter: %v", err)
		}
		r := sample(0)
		r.Text = "你好世界" // 4 characters, 12 bytes
		if err := w.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}

		stats, err := ledger.Verify(path, 16000)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if stats.MaxTextLen != 4 {
			t.Fatalf("expected max text length 4, got %d", stats.MaxTextLen)
		}
	})

	t.Run("empty ledger is a hard error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), ledger.Filename)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		_, err := ledger.Verify(path, 16000)
		if !errors.Is(err, ledger.ErrEmpty) {
			t.Fatalf("expected ErrEmpty, got %v", err)
		}
	})
}
