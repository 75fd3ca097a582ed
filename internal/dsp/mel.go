// Package dsp implements the acoustic feature transform of the pipeline: a
// short-time Fourier transform followed by a mel filterbank and dB
// normalisation, producing the time-major mel-spectrogram matrices persisted
// per utterance.
package dsp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/voxkit/voxprep/internal/config"
)

// Symmetric output range of the normalised spectrogram, in units of
// max-abs-value around zero.
const maxAbsValue = 4.0

// Floor below which magnitudes are clamped before the dB conversion.
const ampFloor = 1e-5

// Extractor computes mel spectrograms from mono waveforms. It carries a
// precomputed FFT plan, analysis window and mel filterbank, so one Extractor
// should be created per worker and reused across utterances. Not safe for
// concurrent use.
type Extractor struct {
	cfg        config.MelConfig
	sampleRate int

	fft    *fourier.FFT
	window []float64
	melFB  [][]float64 // [numMels][numBins]
	frame  []float64   // scratch, len n_fft
}

// NewExtractor builds an Extractor for the given mel parameters and sample
// rate.
func NewExtractor(cfg config.MelConfig, sampleRate int) (*Extractor, error) {
	if cfg.NFFT <= 0 || cfg.HopSize <= 0 || cfg.NumMels <= 0 {
		return nil, fmt.Errorf("dsp: invalid mel config: n_fft=%d hop=%d mels=%d", cfg.NFFT, cfg.HopSize, cfg.NumMels)
	}
	win := cfg.WinSize
	if win <= 0 {
		win = cfg.NFFT
	}

	numBins := cfg.NFFT/2 + 1
	return &Extractor{
		cfg:        cfg,
		sampleRate: sampleRate,
		fft:        fourier.NewFFT(cfg.NFFT),
		window:     hann(win),
		melFB:      melFilterbank(cfg.NumMels, numBins, cfg.NFFT, sampleRate, cfg.FMin, cfg.FMax),
		frame:      make([]float64, cfg.NFFT),
	}, nil
}

// Melspectrogram computes the time-major mel spectrogram of wav: one row per
// frame, cfg.NumMels columns. The waveform is pre-emphasised and
// reflection-padded so that the frame count is 1 + len(wav)/hop.
func (e *Extractor) Melspectrogram(wav []float64) ([][]float64, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("dsp: empty waveform")
	}

	x := preemphasis(wav, e.cfg.Preemphasis)
	x = padReflect(x, e.cfg.NFFT/2)

	numFrames := 1 + (len(x)-e.cfg.NFFT)/e.cfg.HopSize
	if numFrames < 1 {
		numFrames = 1
	}

	coeffs := make([]complex128, e.cfg.NFFT/2+1)
	mel := make([][]float64, numFrames)
	for t := 0; t < numFrames; t++ {
		start := t * e.cfg.HopSize
		for k := range e.frame {
			if start+k < len(x) && k < len(e.window) {
				e.frame[k] = x[start+k] * e.window[k]
			} else {
				e.frame[k] = 0
			}
		}
		e.fft.Coefficients(coeffs, e.frame)

		row := make([]float64, e.cfg.NumMels)
		for m, fb := range e.melFB {
			acc := 0.0
			for b, w := range fb {
				if w == 0 {
					continue
				}
				acc += w * cmplxAbs(coeffs[b])
			}
			row[m] = normalize(ampToDB(acc)-e.cfg.RefLevelDB, e.cfg.MinLevelDB)
		}
		mel[t] = row
	}
	return mel, nil
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// preemphasis applies the first-order high-pass filter y[t] = x[t] - k*x[t-1].
func preemphasis(x []float64, k float64) []float64 {
	if k == 0 {
		return x
	}
	out := make([]float64, len(x))
	out[0] = x[0]
	for i := 1; i < len(x); i++ {
		out[i] = x[i] - k*x[i-1]
	}
	return out
}

// padReflect mirrors pad samples around both ends of x.
func padReflect(x []float64, pad int) []float64 {
	if pad <= 0 || len(x) < 2 {
		return x
	}
	if pad >= len(x) {
		pad = len(x) - 1
	}
	out := make([]float64, 0, len(x)+2*pad)
	for i := pad; i > 0; i-- {
		out = append(out, x[i])
	}
	out = append(out, x...)
	for i := len(x) - 2; i >= len(x)-1-pad; i-- {
		out = append(out, x[i])
	}
	return out
}

func ampToDB(a float64) float64 {
	return 20 * math.Log10(math.Max(ampFloor, a))
}

// normalize maps a dB value into the symmetric [-maxAbsValue, maxAbsValue]
// range, clipping at the bounds.
func normalize(db, minLevelDB float64) float64 {
	v := (2*maxAbsValue)*((db-minLevelDB)/-minLevelDB) - maxAbsValue
	return math.Max(-maxAbsValue, math.Min(maxAbsValue, v))
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// hzToMel and melToHz use the HTK mel scale.
func hzToMel(f float64) float64 { return 2595 * math.Log10(1+f/700) }
func melToHz(m float64) float64 { return 700 * (math.Pow(10, m/2595) - 1) }

// melFilterbank builds numMels triangular filters over numBins linear
// frequency bins.
func melFilterbank(numMels, numBins, nfft, sampleRate int, fmin, fmax float64) [][]float64 {
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}

	melMin := hzToMel(fmin)
	melMax := hzToMel(fmax)

	// numMels+2 equally spaced points on the mel scale, converted to bins.
	points := make([]float64, numMels+2)
	for i := range points {
		hz := melToHz(melMin + (melMax-melMin)*float64(i)/float64(numMels+1))
		points[i] = hz * float64(nfft) / float64(sampleRate)
	}

	fb := make([][]float64, numMels)
	for m := range fb {
		left, center, right := points[m], points[m+1], points[m+2]
		row := make([]float64, numBins)
		for b := range row {
			f := float64(b)
			switch {
			case f > left && f <= center:
				row[b] = (f - left) / (center - left)
			case f > center && f < right:
				row[b] = (right - f) / (right - center)
			}
		}
		fb[m] = row
	}
	return fb
}
