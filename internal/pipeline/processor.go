package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxkit/voxprep/internal/config"
	"github.com/voxkit/voxprep/internal/dsp"
	"github.com/voxkit/voxprep/internal/ledger"
	"github.com/voxkit/voxprep/pkg/audio"
)

// Processor turns one (waveform, text) pair into a mel artifact and its
// ledger record. One Processor is created per worker; it owns a reusable
// feature extractor and is not safe for concurrent use.
type Processor struct {
	cfg          *config.Config
	extractor    *dsp.Extractor
	outDir       string
	skipExisting bool
}

// NewProcessor builds a Processor writing artifacts under outDir.
func NewProcessor(cfg *config.Config, outDir string, skipExisting bool) (*Processor, error) {
	ext, err := dsp.NewExtractor(cfg.Mel, cfg.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	return &Processor{
		cfg:          cfg,
		extractor:    ext,
		outDir:       outDir,
		skipExisting: skipExisting,
	}, nil
}

// Process computes and persists the mel artifact for one utterance. wav may
// be nil, in which case the waveform is loaded from sourcePath and rescaled;
// an in-memory wav (a segment slice) is assumed already rescaled by the
// segmentation pass. base must be unique per utterance.
//
// On success exactly one file is written (the mel artifact) and the returned
// outcome carries the ledger record; every discard path writes nothing.
func (p *Processor) Process(wav []float64, sourcePath, text, base string) Outcome {
	melPath := filepath.Join(p.outDir, MelDir, MelFilename(base))
	if p.skipExisting {
		if _, err := os.Stat(melPath); err == nil {
			return Skipped(SkipExists, sourcePath)
		}
	}

	if wav == nil {
		var err error
		wav, err = audio.Load(sourcePath, p.cfg.Audio.SampleRate)
		if err != nil {
			return Failed(sourcePath, err)
		}
		if p.cfg.Audio.Rescale {
			wav = audio.Rescale(wav, p.cfg.Audio.RescalingMax)
		}
	}

	if audio.Duration(wav, p.cfg.Audio.SampleRate) < p.cfg.Segment.UtteranceMinDuration {
		return Skipped(SkipTooShort, sourcePath)
	}

	mel, err := p.extractor.Melspectrogram(wav)
	if err != nil {
		return Failed(sourcePath, fmt.Errorf("mel extraction: %w", err))
	}
	if p.cfg.Mel.ClipMelsLength && len(mel) > p.cfg.Mel.MaxMelFrames {
		return Skipped(SkipTooLong, sourcePath)
	}

	if err := writeMel(melPath, mel); err != nil {
		return Failed(sourcePath, err)
	}

	return Completed(ledger.Record{
		AudioPath:     filepath.ToSlash(sourcePath),
		MelFilename:   MelFilename(base),
		EmbedFilename: EmbedFilename(base),
		Timesteps:     len(wav),
		MelFrames:     len(mel),
		Text:          text,
	})
}
