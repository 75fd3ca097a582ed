package segment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Denoiser removes stationary noise from a waveform given a sample of pure
// noise taken from the same recording.
type Denoiser interface {
	Denoise(wav, noise []float64, sampleRate int) ([]float64, error)
}

// SpectralDenoiser implements zero-gain spectral subtraction: the average
// magnitude spectrum of the noise sample is subtracted from every frame of
// the waveform, with negative magnitudes clamped to zero.
type SpectralDenoiser struct {
	// FrameSize is the FFT size in samples. Defaults to 512.
	FrameSize int

	// HopSize is the analysis stride in samples. Defaults to FrameSize/4.
	HopSize int
}

// Denoise returns a denoised copy of wav. The noise sample must be at least
// one frame long.
func (d *SpectralDenoiser) Denoise(wav, noise []float64, sampleRate int) ([]float64, error) {
	n := d.FrameSize
	if n <= 0 {
		n = 512
	}
	hop := d.HopSize
	if hop <= 0 {
		hop = n / 4
	}
	if len(noise) < n {
		return nil, fmt.Errorf("segment: noise sample too short: %d samples, need %d", len(noise), n)
	}
	if len(wav) < n {
		return wav, nil
	}

	fft := fourier.NewFFT(n)
	win := hannWindow(n)

	profile := noiseProfile(fft, win, noise, n, hop)

	out := make([]float64, len(wav))
	wsum := make([]float64, len(wav))
	frame := make([]float64, n)
	coeffs := make([]complex128, n/2+1)
	recon := make([]float64, n)

	for start := 0; start+n <= len(wav); start += hop {
		for k := range frame {
			frame[k] = wav[start+k] * win[k]
		}
		fft.Coefficients(coeffs, frame)

		for b := range coeffs {
			mag := math.Hypot(real(coeffs[b]), imag(coeffs[b]))
			if mag == 0 {
				continue
			}
			clean := mag - profile[b]
			if clean < 0 {
				clean = 0
			}
			scale := clean / mag
			coeffs[b] = complex(real(coeffs[b])*scale, imag(coeffs[b])*scale)
		}

		fft.Sequence(recon, coeffs)
		for k := range recon {
			// Sequence is unnormalised: divide by the transform length.
			out[start+k] += recon[k] / float64(n)
			wsum[start+k] += win[k]
		}
	}

	// Overlap-add normalisation; samples outside any full frame (the tail
	// shorter than one frame) keep their original values.
	for i := range out {
		if wsum[i] > 1e-9 {
			out[i] /= wsum[i]
		} else {
			out[i] = wav[i]
		}
	}
	return out, nil
}

// noiseProfile averages the magnitude spectrum over all full frames of the
// noise sample.
func noiseProfile(fft *fourier.FFT, win []float64, noise []float64, n, hop int) []float64 {
	profile := make([]float64, n/2+1)
	frame := make([]float64, n)
	coeffs := make([]complex128, n/2+1)

	frames := 0
	for start := 0; start+n <= len(noise); start += hop {
		for k := range frame {
			frame[k] = noise[start+k] * win[k]
		}
		fft.Coefficients(coeffs, frame)
		for b, c := range coeffs {
			profile[b] += math.Hypot(real(c), imag(c))
		}
		frames++
	}
	if frames > 0 {
		for b := range profile {
			profile[b] /= float64(frames)
		}
	}
	return profile
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}
