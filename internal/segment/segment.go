// Package segment implements silence-driven segmentation of long aligned
// recordings: candidate cut detection from pause annotations, noise-profile
// denoising using the silence regions, and re-attachment of under-length
// segments into their neighbours.
package segment

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/voxkit/voxprep/internal/config"
)

// minNoiseDuration is the minimum length in seconds of concatenated silence
// required before a noise profile is estimated. Below this the waveform is
// used unmodified.
const minNoiseDuration = 0.02

// Segment is one bounded-duration slice of a recording with its joined text.
type Segment struct {
	Samples []float64
	Text    string
}

// Engine cuts recordings into segments. Segments emitted for one recording
// are time-ordered and non-overlapping; after re-attachment each is either at
// least the configured minimum duration or could not be merged without
// exceeding the mel-frame-derived maximum.
type Engine struct {
	sampleRate  int
	silenceMin  float64 // candidate-cut pause threshold, seconds
	minDuration float64 // re-attachment trigger, seconds
	maxDuration float64 // merged-segment cap, seconds
	denoiser    Denoiser
}

// New builds an Engine from cfg. denoiser may be nil to disable denoising.
func New(cfg *config.Config, denoiser Denoiser) *Engine {
	return &Engine{
		sampleRate:  cfg.Audio.SampleRate,
		silenceMin:  cfg.Segment.SilenceMinDurationSplit,
		minDuration: cfg.Segment.UtteranceMinDuration,
		maxDuration: cfg.MaxSegmentDuration(),
		denoiser:    denoiser,
	}
}

// Split cuts wav into segments at qualifying pauses. words holds the ordered
// word tokens of the recording with pauses as empty strings; endTimes holds
// the end time of each token in seconds. When endTimes is nil the whole
// recording becomes a single segment joining all words.
func (e *Engine) Split(wav []float64, words []string, endTimes []float64) ([]Segment, error) {
	if len(endTimes) == 0 {
		return []Segment{{Samples: wav, Text: joinWords(words)}}, nil
	}
	if len(words) != len(endTimes) {
		return nil, fmt.Errorf("segment: %d words but %d end times", len(words), len(endTimes))
	}
	if words[0] != "" || words[len(words)-1] != "" {
		return nil, fmt.Errorf("segment: recording must start and end with a pause token")
	}

	startTimes := make([]float64, len(endTimes))
	copy(startTimes[1:], endTimes[:len(endTimes)-1])

	// Pauses long enough to cut at. The boundary silences are always cuts.
	var breaks []int
	for i, w := range words {
		forced := i == 0 || i == len(words)-1
		if forced || (w == "" && endTimes[i]-startTimes[i] >= e.silenceMin) {
			breaks = append(breaks, i)
		}
	}

	wav = e.denoise(wav, startTimes, endTimes, breaks)

	if len(breaks) < 2 {
		return []Segment{{Samples: wav, Text: joinWords(words)}}, nil
	}

	segs := make([][2]int, 0, len(breaks)-1)
	for i := 0; i+1 < len(breaks); i++ {
		segs = append(segs, [2]int{breaks[i], breaks[i+1]})
	}
	segs = e.reattach(segs, startTimes, endTimes)

	out := make([]Segment, 0, len(segs))
	for _, s := range segs {
		lo := e.sampleIndex(endTimes[s[0]], len(wav))
		hi := e.sampleIndex(startTimes[s[1]], len(wav))
		out = append(out, Segment{
			Samples: wav[lo:hi],
			Text:    joinWords(words[s[0]+1 : s[1]]),
		})
	}
	return out, nil
}

// denoise estimates a noise profile from the samples under the candidate
// silences and removes it from the entire waveform. Skipped when the silence
// material is too short or no denoiser is configured.
func (e *Engine) denoise(wav []float64, startTimes, endTimes []float64, breaks []int) []float64 {
	if e.denoiser == nil {
		return wav
	}

	var noise []float64
	for _, i := range breaks {
		lo := e.sampleIndex(startTimes[i], len(wav))
		hi := e.sampleIndex(endTimes[i], len(wav))
		noise = append(noise, wav[lo:hi]...)
	}
	if float64(len(noise)) <= float64(e.sampleRate)*minNoiseDuration {
		return wav
	}

	clean, err := e.denoiser.Denoise(wav, noise, e.sampleRate)
	if err != nil {
		slog.Warn("denoising failed, using raw waveform", "err", err)
		return wav
	}
	return clean
}

// reattach merges segments shorter than the minimum duration into whichever
// neighbour is shorter, rejecting merges that would exceed the maximum
// duration. Iterates until no further merge is possible or one segment
// remains.
func (e *Engine) reattach(segs [][2]int, startTimes, endTimes []float64) [][2]int {
	durations := make([]float64, len(segs))
	for i, s := range segs {
		durations[i] = startTimes[s[1]] - endTimes[s[0]]
	}

	i := 0
	for i < len(segs) && len(segs) > 1 {
		if durations[i] >= e.minDuration {
			i++
			continue
		}

		left := math.Inf(1)
		if i > 0 {
			left = durations[i-1]
		}
		right := math.Inf(1)
		if i < len(segs)-1 {
			right = durations[i+1]
		}
		joined := durations[i] + math.Min(left, right)
		if joined > e.maxDuration {
			i++
			continue
		}

		// Merge with the shorter neighbour.
		j := i
		if left <= right {
			j = i - 1
		}
		segs[j] = [2]int{segs[j][0], segs[j+1][1]}
		durations[j] = joined
		segs = append(segs[:j+1], segs[j+2:]...)
		durations = append(durations[:j+1], durations[j+2:]...)
	}
	return segs
}

func (e *Engine) sampleIndex(t float64, max int) int {
	i := int(t * float64(e.sampleRate))
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

// joinWords joins non-empty tokens with single spaces.
func joinWords(words []string) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			parts = append(parts, w)
		}
	}
	return strings.Join(parts, " ")
}
