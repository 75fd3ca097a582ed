// Package ledger maintains the train.txt index of completed utterances: a
// pipe-delimited text file mapping each utterance to its artifact filenames
// and statistics. The ledger is written by a single goroutine in the parent
// process and is the sole source of truth for the embedding stage and the
// verification pass.
package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Filename is the ledger's name inside the output directory.
const Filename = "train.txt"

// ErrEmpty is returned by [Verify] when the ledger holds no records.
// Zero processed utterances is a hard error, not an empty success.
var ErrEmpty = errors.New("ledger: no utterances recorded")

// Record is one ledger line. A record exists iff its mel artifact was
// successfully written.
type Record struct {
	// AudioPath is the source recording, with forward slashes regardless of
	// host path conventions.
	AudioPath string

	// MelFilename and EmbedFilename are the artifact basenames, derived
	// deterministically from the utterance base name.
	MelFilename   string
	EmbedFilename string

	// Timesteps is the waveform length in samples.
	Timesteps int

	// MelFrames is the number of rows of the mel matrix.
	MelFrames int

	// Text is the utterance transcript.
	Text string
}

// String renders the record as its ledger line, without the trailing newline.
func (r Record) String() string {
	return strings.Join([]string{
		strings.ReplaceAll(r.AudioPath, "\\", "/"),
		r.MelFilename,
		r.EmbedFilename,
		strconv.Itoa(r.Timesteps),
		strconv.Itoa(r.MelFrames),
		r.Text,
	}, "|")
}

// ParseRecord parses one ledger line.
func ParseRecord(line string) (Record, error) {
	fields := strings.SplitN(strings.TrimRight(line, "\n"), "|", 6)
	if len(fields) != 6 {
		return Record{}, fmt.Errorf("ledger: expected 6 fields, got %d in %q", len(fields), line)
	}
	timesteps, err := strconv.Atoi(fields[3])
	if err != nil {
		return Record{}, fmt.Errorf("ledger: bad timesteps in %q: %w", line, err)
	}
	melFrames, err := strconv.Atoi(fields[4])
	if err != nil {
		return Record{}, fmt.Errorf("ledger: bad mel frame count in %q: %w", line, err)
	}
	return Record{
		AudioPath:     fields[0],
		MelFilename:   fields[1],
		EmbedFilename: fields[2],
		Timesteps:     timesteps,
		MelFrames:     melFrames,
		Text:          fields[5],
	}, nil
}

// Writer appends records to a ledger file. Every append is written through
// to the file immediately, so an interrupted run keeps each record appended
// before the interrupt. Not safe for concurrent use; the pipeline serialises
// all writes through the dispatcher's single consumer.
type Writer struct {
	f *os.File
}

// NewWriter opens the ledger at path. With resume set the file is opened in
// append mode, treating existing content as authoritative; otherwise it is
// truncated.
func NewWriter(path string, resume bool) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	return &Writer{f: f}, nil
}

// Append writes one record line to the file.
func (w *Writer) Append(r Record) error {
	if _, err := w.f.WriteString(r.String() + "\n"); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("ledger: close: %w", err)
	}
	return nil
}

// Read parses every record of the ledger at path.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %q: %w", path, err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if sc.Text() == "" {
			continue
		}
		r, err := ParseRecord(sc.Text())
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %q: %w", path, err)
	}
	return records, nil
}

// Stats are the corpus-level aggregates recomputed from a ledger by [Verify].
type Stats struct {
	Utterances   int
	MelFrames    int
	Timesteps    int
	Hours        float64
	MaxTextLen   int // characters, not bytes
	MaxMelFrames int
	MaxTimesteps int
}

// Verify reads the ledger back and recomputes the corpus statistics. An empty
// ledger returns [ErrEmpty]: the maxima are undefined and a run that produced
// nothing must surface as a failure.
func Verify(path string, sampleRate int) (Stats, error) {
	records, err := Read(path)
	if err != nil {
		return Stats{}, err
	}
	if len(records) == 0 {
		return Stats{}, ErrEmpty
	}

	s := Stats{Utterances: len(records)}
	for _, r := range records {
		s.MelFrames += r.MelFrames
		s.Timesteps += r.Timesteps
		s.MaxTextLen = max(s.MaxTextLen, utf8.RuneCountInString(r.Text))
		s.MaxMelFrames = max(s.MaxMelFrames, r.MelFrames)
		s.MaxTimesteps = max(s.MaxTimesteps, r.Timesteps)
	}
	s.Hours = float64(s.Timesteps) / float64(sampleRate) / 3600
	return s, nil
}
