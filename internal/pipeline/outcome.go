// Package pipeline wires the corpus scanner, segmentation engine, feature
// extraction, and ledger together into the two passes of the preprocessing
// run: mel extraction and speaker embedding.
package pipeline

import "github.com/voxkit/voxprep/internal/ledger"

// SkipReason classifies a discarded utterance. Discards are not errors: they
// are excluded from new writes without being logged as failures.
type SkipReason string

const (
	// SkipExists means the target artifact was already present under
	// skip-existing.
	SkipExists SkipReason = "exists"

	// SkipTooShort means the waveform was below the minimum utterance
	// duration.
	SkipTooShort SkipReason = "too_short"

	// SkipTooLong means the mel frame count exceeded the maximum under the
	// clip-to-max-length policy.
	SkipTooLong SkipReason = "too_long"
)

// Outcome is the typed result of one utterance's processing: a completed
// ledger record, a silent discard, or a failure carried as a value for
// aggregate reporting.
type Outcome struct {
	Record *ledger.Record
	Skip   SkipReason
	Err    error

	// Unit describes the offending input for failure logs.
	Unit string
}

// Completed wraps a successful record.
func Completed(r ledger.Record) Outcome {
	return Outcome{Record: &r}
}

// Skipped marks a discarded unit.
func Skipped(reason SkipReason, unit string) Outcome {
	return Outcome{Skip: reason, Unit: unit}
}

// Failed marks a unit whose processing errored. The failure is excluded from
// the ledger; processing of other units continues.
func Failed(unit string, err error) Outcome {
	return Outcome{Err: err, Unit: unit}
}
