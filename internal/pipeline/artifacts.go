package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// Output subdirectories per artifact type. audio/ is reserved for raw
// waveform artifacts and currently receives no writes.
const (
	MelDir   = "mels"
	AudioDir = "audio"
	EmbedDir = "embeds"
)

// MelFilename returns the mel artifact name for an utterance base name.
func MelFilename(base string) string { return "mel-" + base + ".npy" }

// EmbedFilename returns the embedding artifact name for an utterance base
// name.
func EmbedFilename(base string) string { return "embed-" + base + ".npy" }

// SanitizeBase makes an utterance ID safe for use as an artifact base name.
func SanitizeBase(id string) string { return strings.ReplaceAll(id, "/", "-") }

// EnsureOutputDirs creates the output directory tree.
func EnsureOutputDirs(outDir string) error {
	for _, d := range []string{MelDir, AudioDir, EmbedDir} {
		if err := os.MkdirAll(filepath.Join(outDir, d), 0o755); err != nil {
			return fmt.Errorf("pipeline: create output dir: %w", err)
		}
	}
	return nil
}

// writeMel persists a time-major mel matrix as a NumPy .npy file.
func writeMel(path string, mel [][]float64) error {
	rows := len(mel)
	if rows == 0 {
		return fmt.Errorf("pipeline: empty mel matrix")
	}
	cols := len(mel[0])

	flat := make([]float64, 0, rows*cols)
	for _, row := range mel {
		flat = append(flat, row...)
	}
	return writeNpy(path, mat.NewDense(rows, cols, flat))
}

// writeEmbedding persists an embedding vector as a NumPy .npy file.
func writeEmbedding(path string, vec []float64) error {
	return writeNpy(path, vec)
}

func writeNpy(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pipeline: create %q: %w", path, err)
	}
	if err := npyio.Write(f, data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("pipeline: write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pipeline: close %q: %w", path, err)
	}
	return nil
}
