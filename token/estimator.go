// Package token implements the calibrated token-count heuristic shared by
// every component of the module.
//
// The estimate is intentionally conservative: undercounting risks silently
// overflowing the real model window, which is the more dangerous failure
// mode, so the weighting errs high and ties round up. It is a heuristic, not
// a tokenizer — model-specific exactness is out of scope.
//
// Exactly one constant set exists. Earlier revisions carried a second,
// divergent estimator in the prompt builder; both call sites now share this
// function so the compaction trigger and the final overflow pass agree on
// what a token costs.
package token

import "math"

const (
	// asciiWeight is the approximate token cost per ASCII character.
	asciiWeight = 0.4
	// denseWeight is the cost per non-ASCII character. CJK and other dense
	// scripts encode close to one token per character on most vocabularies.
	denseWeight = 1.6
	// safetyMargin inflates the raw sum to absorb calibration error.
	safetyMargin = 1.2
)

// Estimate returns an approximate token count for text. Pure, deterministic,
// no I/O. Empty text costs zero.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	var total float64
	for _, r := range text {
		if r < 128 {
			total += asciiWeight
		} else {
			total += denseWeight
		}
	}
	return int(math.Ceil(total * safetyMargin))
}
