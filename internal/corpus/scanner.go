// Package corpus discovers speaker directories and transcript material in a
// datasets root. Two corpus layouts are supported: aligned multi-utterance
// recordings (speaker/book directories with alignment files) and
// one-line-per-utterance transcript files (metadata.csv per speaker).
package corpus

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Alignment describes one recording of an aligned corpus: its audio file, the
// ordered word tokens spoken in it, and optionally the end time of each word
// in seconds. Pause tokens are empty strings.
type Alignment struct {
	AudioPath string
	Words     []string
	EndTimes  []float64
}

// TranscriptLine is one work unit of a transcript-layout corpus.
type TranscriptLine struct {
	SpeakerDir string
	ID         string
	Text       string
}

// AudioPath returns the expected location of the line's recording.
func (l TranscriptLine) AudioPath() string {
	return filepath.Join(l.SpeakerDir, "wavs", l.ID+".wav")
}

// ScanSpeakers enumerates the speaker directories of an aligned-layout corpus
// in lexical order. A missing root is a fatal configuration error.
func ScanSpeakers(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("corpus: read datasets root %q: %w", root, err)
	}

	var speakers []string
	for _, e := range entries {
		if e.IsDir() {
			speakers = append(speakers, filepath.Join(root, e.Name()))
		}
	}
	return speakers, nil
}

// ReadAlignments collects the alignment records of every book directory under
// speakerDir. Books without an alignment file are skipped; sparse missing
// alignments are expected in the source corpus.
func ReadAlignments(speakerDir string) ([]Alignment, error) {
	books, err := os.ReadDir(speakerDir)
	if err != nil {
		return nil, fmt.Errorf("corpus: read speaker dir %q: %w", speakerDir, err)
	}

	var alignments []Alignment
	for _, book := range books {
		if !book.IsDir() {
			continue
		}
		bookDir := filepath.Join(speakerDir, book.Name())
		path, ok := findAlignmentFile(bookDir)
		if !ok {
			slog.Debug("no alignment file for book", "book", bookDir)
			continue
		}
		recs, err := parseAlignmentFile(path, bookDir)
		if err != nil {
			return nil, err
		}
		alignments = append(alignments, recs...)
	}
	return alignments, nil
}

// findAlignmentFile locates the book's alignment file, preferring the
// time-aligned *.alignment.txt form over the words-only *.trans.txt form.
func findAlignmentFile(bookDir string) (string, bool) {
	for _, pattern := range []string{"*.alignment.txt", "*.trans.txt"} {
		matches, err := filepath.Glob(filepath.Join(bookDir, pattern))
		if err == nil && len(matches) > 0 {
			return matches[0], true
		}
	}
	return "", false
}

// parseAlignmentFile reads one alignment file. Two line forms are accepted:
//
//	<id> "<w1>,<w2>,..." "<t1>,<t2>,..."   (time-aligned)
//	<id> <w1> <w2> ...                     (words only)
func parseAlignmentFile(path, bookDir string) ([]Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open alignment file %q: %w", path, err)
	}
	defer f.Close()

	var out []Alignment
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		a := Alignment{AudioPath: filepath.Join(bookDir, fields[0]+".wav")}
		if len(fields) == 3 && strings.HasPrefix(fields[1], `"`) {
			a.Words = strings.Split(strings.Trim(fields[1], `"`), ",")
			for _, ts := range strings.Split(strings.Trim(fields[2], `"`), ",") {
				if ts == "" {
					continue
				}
				t, err := strconv.ParseFloat(ts, 64)
				if err != nil {
					return nil, fmt.Errorf("corpus: %s: bad end time %q: %w", path, ts, err)
				}
				a.EndTimes = append(a.EndTimes, t)
			}
			if len(a.Words) != len(a.EndTimes) {
				return nil, fmt.Errorf("corpus: %s: %d words but %d end times for %q", path, len(a.Words), len(a.EndTimes), fields[0])
			}
		} else {
			a.Words = fields[1:]
		}
		out = append(out, a)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: scan %q: %w", path, err)
	}
	return out, nil
}

// ScanTranscript enumerates the transcript lines of a transcript-layout
// corpus in file order. The root itself may be a speaker directory (holding
// metadata.csv), otherwise every immediate subdirectory with a metadata.csv
// is one speaker. A missing root is a fatal configuration error.
func ScanTranscript(root string) ([]TranscriptLine, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("corpus: datasets root %q: %w", root, err)
	}

	speakerDirs := []string{root}
	if _, err := os.Stat(filepath.Join(root, "metadata.csv")); err != nil {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, fmt.Errorf("corpus: read datasets root %q: %w", root, err)
		}
		speakerDirs = speakerDirs[:0]
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			if _, err := os.Stat(filepath.Join(dir, "metadata.csv")); err != nil {
				slog.Debug("no metadata.csv in directory", "dir", dir)
				continue
			}
			speakerDirs = append(speakerDirs, dir)
		}
	}

	var lines []TranscriptLine
	for _, dir := range speakerDirs {
		ls, err := readTranscriptFile(dir)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ls...)
	}
	return lines, nil
}

// readTranscriptFile parses <dir>/metadata.csv: tab-separated
// utterance_id<TAB>text, one per line.
func readTranscriptFile(dir string) ([]TranscriptLine, error) {
	path := filepath.Join(dir, "metadata.csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: open transcript file %q: %w", path, err)
	}
	defer f.Close()

	var out []TranscriptLine
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		id, text, ok := strings.Cut(line, "\t")
		if !ok {
			slog.Warn("malformed transcript line", "file", path, "line", line)
			continue
		}
		out = append(out, TranscriptLine{SpeakerDir: dir, ID: id, Text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("corpus: scan %q: %w", path, err)
	}
	return out, nil
}
